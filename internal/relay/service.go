package relay

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sequinstream/sequin-go/internal/logger"
	"github.com/sequinstream/sequin-go/pkg/publishers"
	"github.com/sequinstream/sequin-go/pkg/sequin"
	"github.com/sequinstream/sequin-go/pkg/subscriptions"
)

// Service pulls deliveries from Sequin consumers and forwards them to publishers.
type Service struct {
	client    StreamClient
	publisher EventPublisher
	dedupe    Deduper
	log       logger.Logger
}

// Result summarizes one pass over a subscription.
type Result struct {
	Received  int
	Forwarded int
	Skipped   int
	Acked     int
	Nacked    int
}

// NewService wires a relay with its client, publisher and optional deduper.
func NewService(client StreamClient, pub EventPublisher, log logger.Logger, dedupe Deduper) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{
		client:    client,
		publisher: pub,
		dedupe:    dedupe,
		log:       log,
	}
}

// Ensure creates streams and consumers for subscriptions that ask for it.
// Resources that already exist are left alone.
func (s *Service) Ensure(ctx context.Context, subs []subscriptions.Subscription) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("relay service is not initialized")
	}

	var errs []error
	for _, sub := range subs {
		if !sub.Ensure {
			continue
		}
		if _, err := s.client.CreateStream(ctx, sub.Stream, sub.StreamOptions); err != nil && !alreadyExists(err) {
			errs = append(errs, fmt.Errorf("ensure stream %s: %w", sub.Stream, err))
			continue
		}
		if _, err := s.client.CreateConsumer(ctx, sub.Stream, sub.Consumer, sub.FilterKeyPattern, sub.ConsumerOptions); err != nil && !alreadyExists(err) {
			errs = append(errs, fmt.Errorf("ensure consumer %s/%s: %w", sub.Stream, sub.Consumer, err))
			continue
		}
		s.log.InfoObj("subscription ensured", "subscription", map[string]any{
			"subscription_id": sub.ID,
			"stream":          sub.Stream,
			"consumer":        sub.Consumer,
		})
	}
	return errors.Join(errs...)
}

func alreadyExists(err error) bool {
	serr := sequin.AsError(err)
	return serr != nil && (serr.Status == http.StatusConflict || serr.Status == http.StatusUnprocessableEntity)
}

// Run executes one relay pass for every subscription.
func (s *Service) Run(ctx context.Context, subs []subscriptions.Subscription) error {
	if s == nil || s.client == nil || s.publisher == nil {
		return fmt.Errorf("relay service is not initialized")
	}
	if len(subs) == 0 {
		return fmt.Errorf("no subscriptions configured for relaying")
	}

	var errs []error
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.RunSubscription(ctx, sub)
		if err != nil {
			errs = append(errs, err)
			s.log.ErrorObj("subscription relay failed", "subscription_error", map[string]any{
				"subscription_id": sub.ID,
				"error":           err.Error(),
			})
			continue
		}
		if res.Received > 0 {
			s.log.InfoObj("subscription relay completed", "subscription_result", map[string]any{
				"subscription_id": sub.ID,
				"received":        res.Received,
				"forwarded":       res.Forwarded,
				"skipped":         res.Skipped,
				"nacked":          res.Nacked,
			})
		}
	}
	return errors.Join(errs...)
}

// RunSubscription receives one batch for sub, forwards fresh deliveries and
// settles every delivery with a single ack and a single nack call.
func (s *Service) RunSubscription(ctx context.Context, sub subscriptions.Subscription) (Result, error) {
	var res Result

	batch, err := s.client.ReceiveMessages(ctx, sub.Stream, sub.Consumer, &sequin.ReceiveOptions{BatchSize: sub.BatchSize})
	if err != nil {
		return res, fmt.Errorf("receive %s/%s: %w", sub.Stream, sub.Consumer, err)
	}
	res.Received = len(batch)
	if len(batch) == 0 {
		return res, nil
	}

	var acks, nacks []string
	var errs []error
	for _, d := range batch {
		id := MessageID(sub.Stream, d.Message)
		if s.seen(id) {
			res.Skipped++
			acks = append(acks, d.AckID)
			continue
		}

		evt := publishers.NewEvent(sub.ID, sub.Stream, sub.Consumer, d.Message)
		n, perr := s.publisher.Publish(ctx, evt)
		if perr != nil || n == 0 {
			if perr == nil {
				perr = errors.New("no publishers accepted the event")
			}
			errs = append(errs, fmt.Errorf("forward %s seq %d: %w", d.Message.Key, d.Message.Seq, perr))
			nacks = append(nacks, d.AckID)
			continue
		}

		s.mark(id)
		res.Forwarded++
		acks = append(acks, d.AckID)
	}

	if len(acks) > 0 {
		if _, err := s.client.AckMessages(ctx, sub.Stream, sub.Consumer, acks); err != nil {
			errs = append(errs, fmt.Errorf("ack %s/%s: %w", sub.Stream, sub.Consumer, err))
		} else {
			res.Acked = len(acks)
		}
	}
	if len(nacks) > 0 {
		if _, err := s.client.NackMessages(ctx, sub.Stream, sub.Consumer, nacks); err != nil {
			errs = append(errs, fmt.Errorf("nack %s/%s: %w", sub.Stream, sub.Consumer, err))
		} else {
			res.Nacked = len(nacks)
		}
	}
	return res, errors.Join(errs...)
}

// seen reports whether id was forwarded before. Store errors are logged and
// treated as unseen so the message is delivered rather than dropped.
func (s *Service) seen(id string) bool {
	if s.dedupe == nil {
		return false
	}
	ok, err := s.dedupe.SeenMessage(id)
	if err != nil {
		s.log.WarnObj("dedupe lookup failed", "dedupe_error", map[string]any{
			"message_id": id,
			"error":      err.Error(),
		})
		return false
	}
	return ok
}

func (s *Service) mark(id string) {
	if s.dedupe == nil {
		return
	}
	if err := s.dedupe.MarkMessage(id); err != nil {
		s.log.WarnObj("dedupe mark failed", "dedupe_error", map[string]any{
			"message_id": id,
			"error":      err.Error(),
		})
	}
}

// MessageID derives a stable identifier for a stream message. The stream id
// scopes it to one incarnation of the stream, since seq restarts when a stream
// is recreated; the stream name is used when the server omits the id. Fields
// are length-prefixed so no two (stream, key, seq) triples share an encoding.
func MessageID(stream string, msg sequin.StreamMessage) string {
	scope := msg.StreamID
	if scope == "" {
		scope = stream
	}

	buf := make([]byte, 0, len(scope)+len(msg.Key)+32)
	for _, field := range []string{scope, msg.Key, strconv.FormatInt(msg.Seq, 10)} {
		buf = strconv.AppendInt(buf, int64(len(field)), 10)
		buf = append(buf, ':')
		buf = append(buf, field...)
	}
	sum := sha1.Sum(buf)
	return hex.EncodeToString(sum[:])
}
