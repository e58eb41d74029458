package sequin

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// SendMessage publishes a single message. It is a one-element SendMessages.
func (c *Client) SendMessage(ctx context.Context, stream, key string, data any) (*PublishResult, error) {
	return c.SendMessages(ctx, stream, []Message{{Key: key, Data: data}})
}

// SendMessages publishes a batch of messages to stream.
func (c *Client) SendMessages(ctx context.Context, stream string, messages []Message) (*PublishResult, error) {
	if messages == nil {
		messages = []Message{}
	}
	body := map[string]any{"messages": messages}

	var res PublishResult
	if serr := c.request(ctx, http.MethodPost, streamPath(stream)+"/messages", body, &res); serr != nil {
		return nil, serr
	}
	return &res, nil
}

// ReceiveMessage pulls at most one message. An empty backlog is not an
// error: it returns (nil, nil).
func (c *Client) ReceiveMessage(ctx context.Context, stream, consumer string) (*Delivery, error) {
	batch, err := c.ReceiveMessages(ctx, stream, consumer, &ReceiveOptions{BatchSize: 1})
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}
	d := batch[0]
	return &d, nil
}

// ReceiveMessages pulls up to opts.BatchSize messages (DefaultBatchSize when
// opts is nil). The returned slice is empty, not nil, when nothing is pending.
func (c *Client) ReceiveMessages(ctx context.Context, stream, consumer string, opts *ReceiveOptions) ([]Delivery, error) {
	endpoint := consumerPath(stream, consumer) + "/receive?batch_size=" + strconv.Itoa(opts.batchSize())

	var res []Delivery
	if serr := c.request(ctx, http.MethodGet, endpoint, nil, &res); serr != nil {
		return nil, serr
	}
	if res == nil {
		res = []Delivery{}
	}
	return res, nil
}

// AckMessage confirms a single delivery.
func (c *Client) AckMessage(ctx context.Context, stream, consumer, ackID string) (*AckResult, error) {
	return c.AckMessages(ctx, stream, consumer, []string{ackID})
}

// AckMessages confirms deliveries so they are not redelivered.
func (c *Client) AckMessages(ctx context.Context, stream, consumer string, ackIDs []string) (*AckResult, error) {
	return c.settle(ctx, stream, consumer, "ack", ackIDs)
}

// NackMessage rejects a single delivery.
func (c *Client) NackMessage(ctx context.Context, stream, consumer, ackID string) (*AckResult, error) {
	return c.NackMessages(ctx, stream, consumer, []string{ackID})
}

// NackMessages rejects deliveries, making them available for redelivery.
func (c *Client) NackMessages(ctx context.Context, stream, consumer string, ackIDs []string) (*AckResult, error) {
	return c.settle(ctx, stream, consumer, "nack", ackIDs)
}

func (c *Client) settle(ctx context.Context, stream, consumer, verb string, ackIDs []string) (*AckResult, error) {
	if ackIDs == nil {
		ackIDs = []string{}
	}
	body := map[string]any{"ack_ids": ackIDs}

	var res AckResult
	if serr := c.request(ctx, http.MethodPost, consumerPath(stream, consumer)+"/"+verb, body, &res); serr != nil {
		return nil, serr
	}
	return &res, nil
}

// streamPath escapes the name as a single segment, so "a b/c" becomes
// "a%20b%2Fc" rather than two path segments.
func streamPath(stream string) string {
	return "/streams/" + url.PathEscape(stream)
}

func consumerPath(stream, consumer string) string {
	return streamPath(stream) + "/consumers/" + url.PathEscape(consumer)
}
