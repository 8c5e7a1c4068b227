package agent

import (
	"context"
	"math/rand"
	"time"

	"github.com/smaller-world/happytown.life/internal/constants"
	"github.com/smaller-world/happytown.life/pkg/wasender"

	"github.com/sirupsen/logrus"
)

// typist keeps the typing indicator alive for the duration of one agent
// turn: an immediate ping, then jittered pings until stopped.
type typist struct {
	sender wasender.Sender
	logger *logrus.Logger
}

// start begins pinging presence for the chat and returns a stop function.
// The stop function is safe to call on every exit path; it waits for the
// ping goroutine to finish and then clears the indicator.
func (t *typist) start(ctx context.Context, chatJID string) func() {
	pingCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			if err := t.sender.UpdatePresence(pingCtx, chatJID, wasender.PresenceComposing); err != nil {
				if pingCtx.Err() != nil {
					return
				}
				t.logger.WithError(err).Debug("Typing ping failed")
			}

			interval := constants.TypingPingMinInterval +
				time.Duration(rand.Int63n(int64(constants.TypingPingMaxInterval-constants.TypingPingMinInterval)))
			select {
			case <-pingCtx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()

	return func() {
		cancel()
		<-done

		// clear the indicator with its own deadline; the turn's context
		// may already be cancelled
		clearCtx, clearCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer clearCancel()
		if err := t.sender.UpdatePresence(clearCtx, chatJID, wasender.PresenceAvailable); err != nil {
			t.logger.WithError(err).Debug("Failed to clear typing indicator")
		}
	}
}
