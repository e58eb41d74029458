package sequin

import (
	"encoding/json"
	"time"
)

// Message is a message to publish.
type Message struct {
	Key  string `json:"key"`
	Data any    `json:"data"`
}

// StreamMessage is a message as stored in a stream.
type StreamMessage struct {
	Key        string          `json:"key"`
	StreamID   string          `json:"stream_id,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	Data       json.RawMessage `json:"data"`
	InsertedAt *time.Time      `json:"inserted_at,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

// Delivery is one received message together with the ack id that settles it.
type Delivery struct {
	Message StreamMessage `json:"message"`
	AckID   string        `json:"ack_id"`
}

// ReceiveOptions controls a receive call. A BatchSize of zero or less is
// sent as DefaultBatchSize, so the zero value is usable as-is.
type ReceiveOptions struct {
	BatchSize int `json:"batch_size"`
}

// DefaultBatchSize applies when ReceiveOptions is nil or BatchSize is not positive.
const DefaultBatchSize = 10

func (o *ReceiveOptions) batchSize() int {
	if o == nil || o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// Options carries additional server-recognized fields merged into create
// requests. The client does not validate them.
type Options map[string]any

// PublishResult reports how many messages the server accepted.
type PublishResult struct {
	Published int `json:"published"`
}

// AckResult reports the outcome of an ack or nack.
type AckResult struct {
	Success bool `json:"success"`
}

// DeleteResult reports the outcome of a delete.
type DeleteResult struct {
	ID      string `json:"id,omitempty"`
	Deleted bool   `json:"deleted"`
}

// StreamStats holds server-side counters for a stream.
type StreamStats struct {
	MessageCount  int64 `json:"message_count"`
	ConsumerCount int64 `json:"consumer_count"`
	StorageSize   int64 `json:"storage_size"`
}

// Stream is a stream resource.
type Stream struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	AccountID  string      `json:"account_id,omitempty"`
	Stats      StreamStats `json:"stats"`
	InsertedAt *time.Time  `json:"inserted_at,omitempty"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
}

// Consumer is a consumer resource.
type Consumer struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	StreamID         string     `json:"stream_id,omitempty"`
	FilterKeyPattern string     `json:"filter_key_pattern"`
	Kind             string     `json:"kind"`
	AckWaitMs        int64      `json:"ack_wait_ms,omitempty"`
	MaxAckPending    int64      `json:"max_ack_pending,omitempty"`
	MaxDeliver       int64      `json:"max_deliver,omitempty"`
	InsertedAt       *time.Time `json:"inserted_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}
