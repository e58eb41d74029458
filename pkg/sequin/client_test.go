package sequin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sequinstream/sequin-go/pkg/httpclient"
	"github.com/sequinstream/sequin-go/pkg/sequin/sequintest"
)

func newTestClient(t *testing.T) (*Client, *sequintest.MockServer) {
	t.Helper()
	srv := sequintest.NewMockServer()
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL())), srv
}

func mustCreateStream(t *testing.T, c *Client, name string) *Stream {
	t.Helper()
	s, err := c.CreateStream(context.Background(), name, nil)
	if err != nil {
		t.Fatalf("CreateStream(%s): %v", name, err)
	}
	return s
}

func mustCreateConsumer(t *testing.T, c *Client, stream, name, filter string) *Consumer {
	t.Helper()
	cons, err := c.CreateConsumer(context.Background(), stream, name, filter, nil)
	if err != nil {
		t.Fatalf("CreateConsumer(%s): %v", name, err)
	}
	return cons
}

func TestNewClientBaseURLPrecedence(t *testing.T) {
	t.Setenv("SEQUIN_URL", "http://env.example:7376")

	if got := NewClient(WithBaseURL("http://arg.example")).BaseURL(); got != "http://arg.example" {
		t.Fatalf("explicit base URL = %q", got)
	}
	if got := NewClient().BaseURL(); got != "http://env.example:7376" {
		t.Fatalf("env base URL = %q", got)
	}
	if got := NewClient(WithBaseURL("http://arg.example/")).BaseURL(); got != "http://arg.example" {
		t.Fatalf("trailing slash should be trimmed, got %q", got)
	}
	if got := NewClient(WithBaseURL("")).BaseURL(); got != "http://env.example:7376" {
		t.Fatalf("empty argument should fall back to env, got %q", got)
	}

	t.Setenv("SEQUIN_URL", "")
	if got := NewClient().BaseURL(); got != DefaultBaseURL {
		t.Fatalf("default base URL = %q", got)
	}
}

func TestCreateAndDeleteStreamRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	s := mustCreateStream(t, c, "test_stream")
	if s.Name != "test_stream" {
		t.Fatalf("stream name = %q", s.Name)
	}
	if s.ID == "" || s.AccountID == "" || s.InsertedAt == nil || s.UpdatedAt == nil {
		t.Fatalf("stream resource incomplete: %+v", s)
	}

	res, err := c.DeleteStream(ctx, "test_stream")
	if err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	if !res.Deleted {
		t.Fatalf("expected deleted=true, got %+v", res)
	}
}

func TestRequestsCarryJSONHeaders(t *testing.T) {
	c, srv := newTestClient(t)
	mustCreateStream(t, c, "orders")

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if got := reqs[0].Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := reqs[0].Header.Get("Accept"); got != "application/json" {
		t.Fatalf("Accept = %q", got)
	}
	if reqs[0].Method != http.MethodPost || reqs[0].Path != "/streams" {
		t.Fatalf("unexpected request %s %s", reqs[0].Method, reqs[0].Path)
	}
}

func TestSendMessageMatchesOneElementBatch(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	mustCreateStream(t, c, "orders")

	single, err := c.SendMessage(ctx, "orders", "orders.1", "value1")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	batch, err := c.SendMessages(ctx, "orders", []Message{{Key: "orders.1", Data: "value1"}})
	if err != nil {
		t.Fatalf("SendMessages: %v", err)
	}
	if single.Published != 1 || batch.Published != 1 {
		t.Fatalf("published single=%d batch=%d", single.Published, batch.Published)
	}

	reqs := srv.Requests()
	if string(reqs[1].Body) != string(reqs[2].Body) {
		t.Fatalf("request bodies differ: %s vs %s", reqs[1].Body, reqs[2].Body)
	}
	if string(reqs[1].Body) != `{"messages":[{"key":"orders.1","data":"value1"}]}` {
		t.Fatalf("unexpected body %s", reqs[1].Body)
	}
}

func TestSendMessagesReportsCount(t *testing.T) {
	c, _ := newTestClient(t)
	mustCreateStream(t, c, "orders")

	res, err := c.SendMessages(context.Background(), "orders", []Message{
		{Key: "test.2", Data: "value2"},
		{Key: "test.3", Data: map[string]any{"n": 3}},
	})
	if err != nil {
		t.Fatalf("SendMessages: %v", err)
	}
	if res.Published != 2 {
		t.Fatalf("published = %d", res.Published)
	}
}

func TestReceiveMessageOnEmptyBacklogReturnsNilNil(t *testing.T) {
	c, _ := newTestClient(t)
	mustCreateStream(t, c, "orders")
	mustCreateConsumer(t, c, "orders", "relay", "orders.>")

	d, err := c.ReceiveMessage(context.Background(), "orders", "relay")
	if err != nil {
		t.Fatalf("expected no error on empty backlog, got %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil delivery, got %+v", d)
	}
}

func TestReceiveMessageReturnsDelivery(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	mustCreateStream(t, c, "orders")
	mustCreateConsumer(t, c, "orders", "relay", "orders.>")
	if _, err := c.SendMessage(ctx, "orders", "orders.1", map[string]any{"id": 1}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	d, err := c.ReceiveMessage(ctx, "orders", "relay")
	if err != nil || d == nil {
		t.Fatalf("ReceiveMessage: d=%v err=%v", d, err)
	}
	if d.AckID == "" || d.Message.Key != "orders.1" || d.Message.Seq != 1 {
		t.Fatalf("unexpected delivery %+v", d)
	}
	var payload struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(d.Message.Data, &payload); err != nil || payload.ID != 1 {
		t.Fatalf("decode data %s: %v", d.Message.Data, err)
	}

	reqs := srv.Requests()
	last := reqs[len(reqs)-1]
	if last.Path != "/streams/orders/consumers/relay/receive" || last.Query != "batch_size=1" {
		t.Fatalf("unexpected receive request %s?%s", last.Path, last.Query)
	}
}

func TestReceiveMessagesHonorsBatchSize(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreateStream(t, c, "orders")
	mustCreateConsumer(t, c, "orders", "relay", "test.>")

	msgs := make([]Message, 0, 10)
	for i := 0; i < 10; i++ {
		msgs = append(msgs, Message{Key: "test." + string(rune('a'+i)), Data: i})
	}
	if _, err := c.SendMessages(ctx, "orders", msgs); err != nil {
		t.Fatalf("SendMessages: %v", err)
	}

	batch, err := c.ReceiveMessages(ctx, "orders", "relay", &ReceiveOptions{BatchSize: 3})
	if err != nil {
		t.Fatalf("ReceiveMessages: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(batch))
	}

	rest, err := c.ReceiveMessages(ctx, "orders", "relay", &ReceiveOptions{BatchSize: 1000})
	if err != nil {
		t.Fatalf("ReceiveMessages: %v", err)
	}
	if len(rest) != 7 {
		t.Fatalf("expected remaining 7 deliveries, got %d", len(rest))
	}

	empty, err := c.ReceiveMessages(ctx, "orders", "relay", nil)
	if err != nil {
		t.Fatalf("ReceiveMessages: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil batch, got %#v", empty)
	}
}

func TestReceiveMessagesDefaultsBatchSize(t *testing.T) {
	c, srv := newTestClient(t)
	mustCreateStream(t, c, "orders")
	mustCreateConsumer(t, c, "orders", "relay", ">")

	for _, size := range []int{0, -5} {
		if _, err := c.ReceiveMessages(context.Background(), "orders", "relay", &ReceiveOptions{BatchSize: size}); err != nil {
			t.Fatalf("ReceiveMessages(%d): %v", size, err)
		}
		reqs := srv.Requests()
		if got := reqs[len(reqs)-1].Query; got != "batch_size=10" {
			t.Fatalf("batch size %d: query = %q", size, got)
		}
	}
}

func TestBaseURLAndNamesAreNormalized(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"id":"x","deleted":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/api/"))
	if _, err := c.DeleteStream(context.Background(), "a b/c"); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	if gotPath != "/api/streams/a%20b%2Fc" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestAckAndNackMessages(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	mustCreateStream(t, c, "orders")
	mustCreateConsumer(t, c, "orders", "relay", "orders.>")
	if _, err := c.SendMessages(ctx, "orders", []Message{
		{Key: "orders.1", Data: 1},
		{Key: "orders.2", Data: 2},
	}); err != nil {
		t.Fatalf("SendMessages: %v", err)
	}

	batch, err := c.ReceiveMessages(ctx, "orders", "relay", &ReceiveOptions{BatchSize: 2})
	if err != nil || len(batch) != 2 {
		t.Fatalf("ReceiveMessages: len=%d err=%v", len(batch), err)
	}

	acked, err := c.AckMessage(ctx, "orders", "relay", batch[0].AckID)
	if err != nil || !acked.Success {
		t.Fatalf("AckMessage: %+v %v", acked, err)
	}
	nacked, err := c.NackMessages(ctx, "orders", "relay", []string{batch[1].AckID})
	if err != nil || !nacked.Success {
		t.Fatalf("NackMessages: %+v %v", nacked, err)
	}

	if got := srv.Pending("orders", "relay"); got != 1 {
		t.Fatalf("expected 1 pending after ack, got %d", got)
	}

	redelivered, err := c.ReceiveMessage(ctx, "orders", "relay")
	if err != nil || redelivered == nil {
		t.Fatalf("expected nacked message to be redelivered, d=%v err=%v", redelivered, err)
	}
	if redelivered.Message.Key != "orders.2" {
		t.Fatalf("redelivered key = %q", redelivered.Message.Key)
	}

	res, err := c.AckMessages(ctx, "orders", "relay", []string{redelivered.AckID})
	if err != nil || !res.Success {
		t.Fatalf("AckMessages: %+v %v", res, err)
	}
	nres, err := c.NackMessage(ctx, "orders", "relay", redelivered.AckID)
	if err != nil || !nres.Success {
		t.Fatalf("NackMessage on settled id: %+v %v", nres, err)
	}
}

func TestCreateConsumerMergesOptions(t *testing.T) {
	c, srv := newTestClient(t)
	mustCreateStream(t, c, "orders")

	cons, err := c.CreateConsumer(context.Background(), "orders", "full", "test.>", Options{
		"ack_wait_ms":     60000,
		"max_ack_pending": 5000,
		"max_deliver":     3,
		"kind":            "push",
		"name":            "ignored",
	})
	if err != nil {
		t.Fatalf("CreateConsumer: %v", err)
	}
	if cons.Name != "full" || cons.Kind != ConsumerKindPull || cons.FilterKeyPattern != "test.>" {
		t.Fatalf("fixed fields overridden: %+v", cons)
	}
	if cons.AckWaitMs != 60000 || cons.MaxAckPending != 5000 || cons.MaxDeliver != 3 {
		t.Fatalf("options not passed through: %+v", cons)
	}

	reqs := srv.Requests()
	var body map[string]any
	if err := json.Unmarshal(reqs[len(reqs)-1].Body, &body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if body["kind"] != "pull" || body["name"] != "full" {
		t.Fatalf("unexpected request body %v", body)
	}
}

func TestDeleteConsumer(t *testing.T) {
	c, _ := newTestClient(t)
	mustCreateStream(t, c, "orders")
	mustCreateConsumer(t, c, "orders", "relay", ">")

	res, err := c.DeleteConsumer(context.Background(), "orders", "relay")
	if err != nil {
		t.Fatalf("DeleteConsumer: %v", err)
	}
	if !res.Deleted {
		t.Fatalf("expected deleted=true")
	}
}

func TestNonexistentStreamReturnsStatusAndSummary(t *testing.T) {
	c, _ := newTestClient(t)

	res, err := c.SendMessage(context.Background(), "non_existent_stream", "testKey", "testValue")
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
	serr := AsError(err)
	if serr == nil {
		t.Fatalf("expected error")
	}
	if serr.Status != http.StatusNotFound || serr.Summary != "Stream not found" {
		t.Fatalf("unexpected error %+v", serr)
	}
}

func TestUnreachableServerReturnsFriendlyError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	baseURL := "http://" + ln.Addr().String()
	ln.Close()

	c := NewClient(WithBaseURL(baseURL))
	res, err := c.CreateStream(context.Background(), "test_stream", nil)
	if res != nil {
		t.Fatalf("expected nil result")
	}
	serr := AsError(err)
	if serr == nil || serr.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %+v", serr)
	}
	if !strings.Contains(serr.Summary, "We can't reach Sequin") || !strings.Contains(serr.Summary, baseURL) {
		t.Fatalf("summary missing reachability hint: %q", serr.Summary)
	}
}

type failingHTTPClient struct {
	err error
}

func (f failingHTTPClient) Do(context.Context, string, string, map[string]string, []byte) (httpclient.Response, error) {
	return nil, f.err
}

func TestOtherTransportErrorsKeepRawText(t *testing.T) {
	c := NewClient(WithBaseURL("http://example.invalid"), WithHTTPClient(failingHTTPClient{err: errors.New("tls: handshake failure")}))

	_, err := c.DeleteStream(context.Background(), "orders")
	serr := AsError(err)
	if serr.Status != http.StatusInternalServerError || serr.Summary != "tls: handshake failure" {
		t.Fatalf("unexpected error %+v", serr)
	}
}

func TestErrorWithoutSummaryFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).DeleteStream(context.Background(), "orders")
	serr := AsError(err)
	if serr.Status != http.StatusBadGateway || serr.Summary != "Unknown error" {
		t.Fatalf("unexpected error %+v", serr)
	}
}

func TestSuccessPayloadWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"published":4}`))
	}))
	defer srv.Close()

	res, err := NewClient(WithBaseURL(srv.URL)).SendMessages(context.Background(), "orders", nil)
	if err != nil {
		t.Fatalf("SendMessages: %v", err)
	}
	if res.Published != 4 {
		t.Fatalf("published = %d", res.Published)
	}
}

func TestInvalidSuccessBodyIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).DeleteStream(context.Background(), "orders")
	serr := AsError(err)
	if serr == nil || serr.Status != http.StatusOK || !strings.HasPrefix(serr.Summary, "decode response") {
		t.Fatalf("unexpected error %+v", serr)
	}
}

func TestCreateValidatesRequiredFieldsLocally(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	if _, err := c.CreateStream(ctx, "  ", nil); AsError(err).Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty stream name, got %v", err)
	}
	if _, err := c.CreateConsumer(ctx, "orders", "relay", "", nil); AsError(err).Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty filter, got %v", err)
	}
	if n := len(srv.Requests()); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Fatalf("AsError(nil) should be nil")
	}
	wrapped := AsError(errors.New("boom"))
	if wrapped.Status != http.StatusInternalServerError || wrapped.Summary != "boom" {
		t.Fatalf("unexpected %+v", wrapped)
	}
	orig := &Error{Status: 404, Summary: "missing"}
	if AsError(orig) != orig {
		t.Fatalf("expected same *Error back")
	}
}
