package relay

import (
	"context"

	"github.com/sequinstream/sequin-go/pkg/publishers"
	"github.com/sequinstream/sequin-go/pkg/sequin"
)

// StreamClient is the subset of the Sequin client the relay drives.
type StreamClient interface {
	CreateStream(ctx context.Context, name string, opts sequin.Options) (*sequin.Stream, error)
	CreateConsumer(ctx context.Context, stream, name, filter string, opts sequin.Options) (*sequin.Consumer, error)
	ReceiveMessages(ctx context.Context, stream, consumer string, opts *sequin.ReceiveOptions) ([]sequin.Delivery, error)
	AckMessages(ctx context.Context, stream, consumer string, ackIDs []string) (*sequin.AckResult, error)
	NackMessages(ctx context.Context, stream, consumer string, ackIDs []string) (*sequin.AckResult, error)
}

// EventPublisher forwards relayed messages downstream and reports how many
// sinks accepted the event.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Deduper remembers which messages were already forwarded.
type Deduper interface {
	SeenMessage(id string) (bool, error)
	MarkMessage(id string) error
}
