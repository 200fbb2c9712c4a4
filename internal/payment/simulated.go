package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Simulated approves every charge. Delay lets tests exercise the timeout path.
type Simulated struct {
	Timeout time.Duration
	Delay   time.Duration
}

// Authorize returns a fresh pay_ identifier unless ctx ends first.
func (s Simulated) Authorize(ctx context.Context, req AuthRequest) (Authorization, error) {
	if req.Amount.IsNegative() {
		return Authorization{}, fmt.Errorf("%w: negative amount", ErrDeclined)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Authorization{}, fmt.Errorf("payment authorization: %w", ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Authorization{}, fmt.Errorf("payment authorization: %w", err)
	}
	return Authorization{PaymentID: "pay_" + uuid.NewString(), Provider: "simulated"}, nil
}
