// Package presence defines the ephemeral per-conversation broadcast channel
// used for typing signals. No persistence and no delivery guarantee beyond
// best effort while subscribed: a lost signal self-heals via the receiver-side
// expiry window in the reconciler.
package presence

import (
	"context"

	"github.com/MetaFacil/AppConecta/internal/model"
)

// Channel is a joined per-conversation typing channel.
// Implementations: realtime broadcast (hosted gateway) and Redis pub/sub
// (direct mode). After a transport reconnect the implementation rejoins on its
// own and must not surface the reconnect as a signal.
type Channel interface {
	// Publish sends a typing signal, fire-and-forget: no acknowledgement, no
	// retry. Errors are worth logging and nothing else.
	Publish(ctx context.Context, sig model.TypingSignal) error
	// Signals delivers received signals, at most once per received signal.
	// Own signals may or may not be echoed back; consumers filter by UserID.
	Signals() <-chan model.TypingSignal
	// Close leaves the channel and releases resources.
	Close() error
}

// Joiner opens presence channels by conversation.
type Joiner interface {
	Join(chatID string) (Channel, error)
}
