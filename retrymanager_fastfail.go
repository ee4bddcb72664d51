package shardkvx

import (
	"context"
	"time"
)

type RetryManagerFastFail struct {
}

var _ RetryManager = (*RetryManagerFastFail)(nil)

func NewRetryManagerFastFail() *RetryManagerFastFail {
	return &RetryManagerFastFail{}
}

func (m *RetryManagerFastFail) NewRetryController() RetryController {
	return &retryControllerFastFail{}
}

type retryControllerFastFail struct{}

func (rc retryControllerFastFail) ShouldRetry(ctx context.Context, err error) (time.Duration, bool, error) {
	return 0, false, nil
}
