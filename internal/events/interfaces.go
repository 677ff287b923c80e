package events

import (
	"context"

	"referrald/internal/models"
)

// Publisher accepts events produced by a committed ledger write. Callers
// publish in commit order; the publisher assigns sequence numbers in that
// order.
type Publisher interface {
	Publish(events ...*models.Event)
}

// Sink is an external destination for events. Deliver is called from a
// dispatcher worker, never from the ledger write path.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt *models.Event) error
}
