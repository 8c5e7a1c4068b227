package wasender

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// sendGate spaces outbound sends at least one protection interval apart,
// shared by every caller in the process. The first send passes immediately.
type sendGate struct {
	limiter *rate.Limiter
}

func newSendGate(interval time.Duration) *sendGate {
	if interval <= 0 {
		// no spacing requested
		return &sendGate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &sendGate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// wait blocks until the next send slot, or until ctx is done.
func (g *sendGate) wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
