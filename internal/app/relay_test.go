package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sequinstream/sequin-go/internal/config"
	"github.com/sequinstream/sequin-go/pkg/publishers"
	"github.com/sequinstream/sequin-go/pkg/sequin"
	"github.com/sequinstream/sequin-go/pkg/sequin/sequintest"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRelayForwardsMessagesToHTTPSink(t *testing.T) {
	srv := sequintest.NewMockServer()
	defer srv.Close()

	received := make(chan publishers.Event, 4)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt publishers.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err == nil {
			received <- evt
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer sink.Close()

	dir := t.TempDir()
	subsFile := writeFile(t, dir, "subscriptions.yaml", `
subscriptions:
  - stream: orders
    consumer: relay
    filter_key_pattern: "orders.>"
    ensure: true
`)
	pubsFile := writeFile(t, dir, "publishers.yaml", `
publishers:
  - id: hook
    type: http
    http:
      url: `+sink.URL+`
`)
	cfg := &config.Config{
		SequinURL:              srv.URL(),
		SubscriptionsFile:      subsFile,
		PublishersFile:         pubsFile,
		PollInterval:           20 * time.Millisecond,
		StorageType:            "bbolt",
		BBoltPath:              filepath.Join(dir, "relay.db"),
		StorageTTL:             time.Hour,
		StorageCleanupInterval: time.Hour,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rl, err := NewRelay(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rl.Run(ctx) }()

	client := sequin.NewClient(sequin.WithBaseURL(srv.URL()))
	deadline := time.Now().Add(2 * time.Second)
	for {
		// Stream is created by the relay's ensure step.
		if _, err := client.SendMessage(ctx, "orders", "orders.created", map[string]int{"id": 1}); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stream was never ensured")
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case evt := <-received:
		if evt.Key != "orders.created" || evt.Stream != "orders" {
			t.Fatalf("unexpected event %#v", evt)
		}
	case <-ctx.Done():
		t.Fatalf("message was never forwarded")
	}

	for srv.Pending("orders", "relay") != 0 {
		if ctx.Err() != nil {
			t.Fatalf("message was never acked")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestNewRelayRequiresConfig(t *testing.T) {
	if _, err := NewRelay(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestNewRelayFailsOnMissingSubscriptions(t *testing.T) {
	cfg := &config.Config{SubscriptionsFile: filepath.Join(t.TempDir(), "missing.yaml")}
	if _, err := NewRelay(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for missing subscriptions file")
	}
}
