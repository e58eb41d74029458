package publishers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sequinstream/sequin-go/pkg/sequin"
)

// Event is the payload forwarded downstream for one relayed delivery.
type Event struct {
	SubscriptionID string          `json:"subscription_id"`
	Stream         string          `json:"stream"`
	Consumer       string          `json:"consumer"`
	Key            string          `json:"key"`
	Seq            int64           `json:"seq"`
	Data           json.RawMessage `json:"data"`
	RelayedAt      time.Time       `json:"relayed_at"`
}

// NewEvent builds an Event from a received stream message.
func NewEvent(subscriptionID, stream, consumer string, msg sequin.StreamMessage) Event {
	data := msg.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Event{
		SubscriptionID: subscriptionID,
		Stream:         stream,
		Consumer:       consumer,
		Key:            msg.Key,
		Seq:            msg.Seq,
		Data:           data,
		RelayedAt:      time.Now().UTC(),
	}
}

// Attributes returns the routing metadata attached to broker messages.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{
		"stream":      e.Stream,
		"message_key": e.Key,
	}
	if e.SubscriptionID != "" {
		attrs["subscription_id"] = e.SubscriptionID
	}
	if e.Seq > 0 {
		attrs["seq"] = strconv.FormatInt(e.Seq, 10)
	}
	return attrs
}
