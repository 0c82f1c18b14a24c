/*
Copyright 2022 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"
)

// Policy describes how an operation against an external system is
// retried: how many times, how long to wait between attempts and which
// errors are worth another try.
type Policy struct {
	// Attempts is the total number of tries, including the first one
	Attempts uint
	// Delay before the first retry. It doubles on every further retry.
	Delay time.Duration
	// MaxDelay caps the backoff. Zero means no cap.
	MaxDelay time.Duration
	// RetryIf classifies errors. A nil RetryIf retries every error.
	RetryIf func(error) bool
	// Description is used in log messages
	Description string
}

// Do runs fn until it succeeds, returns an error RetryIf rejects or the
// attempts are exhausted. The returned error is always the last one fn
// produced.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = func(error) bool { return true }
	}

	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.Delay(p.Delay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(retryIf),
		retrygo.OnRetry(func(n uint, err error) {
			logrus.WithField("retry", p.Description).Warnf(
				"Attempt %d/%d failed: %v", n+1, attempts, err,
			)
		}),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, retrygo.MaxDelay(p.MaxDelay))
	}
	return retrygo.Do(fn, opts...)
}
