package sequintest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultBatchSize = 10

// Request is a recorded request, kept for assertions.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// MockServer is an in-memory implementation of the Sequin stream API.
type MockServer struct {
	server    *httptest.Server
	accountID string

	mu       sync.Mutex
	streams  map[string]*mockStream
	requests []Request
}

type mockStream struct {
	id         string
	name       string
	messages   []mockMessage
	consumers  map[string]*mockConsumer
	nextSeq    int64
	storage    int64
	insertedAt time.Time
	updatedAt  time.Time
}

type mockMessage struct {
	Key        string          `json:"key"`
	StreamID   string          `json:"stream_id"`
	Seq        int64           `json:"seq"`
	Data       json.RawMessage `json:"data"`
	InsertedAt time.Time       `json:"inserted_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type mockConsumer struct {
	id         string
	name       string
	filter     string
	fields     map[string]any
	inflight   map[int64]string
	ackIDs     map[string]int64
	acked      map[int64]bool
	insertedAt time.Time
}

// NewMockServer starts a new in-memory server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		accountID: uuid.NewString(),
		streams:   make(map[string]*mockStream),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /streams", ms.handleCreateStream)
	mux.HandleFunc("DELETE /streams/{stream}", ms.handleDeleteStream)
	mux.HandleFunc("POST /streams/{stream}/messages", ms.handleSend)
	mux.HandleFunc("POST /streams/{stream}/consumers", ms.handleCreateConsumer)
	mux.HandleFunc("DELETE /streams/{stream}/consumers/{consumer}", ms.handleDeleteConsumer)
	mux.HandleFunc("GET /streams/{stream}/consumers/{consumer}/receive", ms.handleReceive)
	mux.HandleFunc("POST /streams/{stream}/consumers/{consumer}/ack", ms.handleAck)
	mux.HandleFunc("POST /streams/{stream}/consumers/{consumer}/nack", ms.handleNack)

	ms.server = httptest.NewServer(ms.record(mux))
	return ms
}

// URL returns the base URL of the server.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close shuts the server down.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// Reset drops all streams and recorded requests.
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.streams = make(map[string]*mockStream)
	ms.requests = nil
}

// Requests returns a copy of the requests received so far.
func (ms *MockServer) Requests() []Request {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]Request, len(ms.requests))
	copy(out, ms.requests)
	return out
}

// Pending returns how many messages of stream the consumer has not acked yet,
// in flight ones included.
func (ms *MockServer) Pending(stream, consumer string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s := ms.lookupStream(stream)
	if s == nil {
		return 0
	}
	c := s.lookupConsumer(consumer)
	if c == nil {
		return 0
	}
	n := 0
	for _, m := range s.messages {
		if MatchKey(c.filter, m.Key) && !c.acked[m.Seq] {
			n++
		}
	}
	return n
}

func (ms *MockServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		ms.mu.Lock()
		ms.requests = append(ms.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		ms.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// lookupStream finds a stream by id or name. Callers hold ms.mu.
func (ms *MockServer) lookupStream(idOrName string) *mockStream {
	if s, ok := ms.streams[idOrName]; ok {
		return s
	}
	for _, s := range ms.streams {
		if s.name == idOrName {
			return s
		}
	}
	return nil
}

func (s *mockStream) lookupConsumer(idOrName string) *mockConsumer {
	if c, ok := s.consumers[idOrName]; ok {
		return c
	}
	for _, c := range s.consumers {
		if c.name == idOrName {
			return c
		}
	}
	return nil
}

func (ms *MockServer) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name, _ := body["name"].(string)
	if name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name can't be blank")
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.lookupStream(name) != nil {
		writeError(w, http.StatusConflict, "name has already been taken")
		return
	}
	now := time.Now().UTC()
	s := &mockStream{
		id:         uuid.NewString(),
		name:       name,
		consumers:  make(map[string]*mockConsumer),
		insertedAt: now,
		updatedAt:  now,
	}
	ms.streams[s.id] = s
	writeJSON(w, http.StatusOK, ms.streamView(s))
}

func (ms *MockServer) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s := ms.lookupStream(r.PathValue("stream"))
	if s == nil {
		writeError(w, http.StatusNotFound, "Stream not found")
		return
	}
	delete(ms.streams, s.id)
	writeJSON(w, http.StatusOK, map[string]any{"id": s.id, "deleted": true})
}

func (ms *MockServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Messages []struct {
			Key  string          `json:"key"`
			Data json.RawMessage `json:"data"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	s := ms.lookupStream(r.PathValue("stream"))
	if s == nil {
		writeError(w, http.StatusNotFound, "Stream not found")
		return
	}
	for _, m := range body.Messages {
		if m.Key == "" {
			writeError(w, http.StatusUnprocessableEntity, "message key can't be blank")
			return
		}
	}

	now := time.Now().UTC()
	for _, m := range body.Messages {
		s.nextSeq++
		data := m.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		s.messages = append(s.messages, mockMessage{
			Key:        m.Key,
			StreamID:   s.id,
			Seq:        s.nextSeq,
			Data:       data,
			InsertedAt: now,
			UpdatedAt:  now,
		})
		s.storage += int64(len(data))
	}
	s.updatedAt = now
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"published": len(body.Messages)},
	})
}

func (ms *MockServer) handleCreateConsumer(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name, _ := body["name"].(string)
	filter, _ := body["filter_key_pattern"].(string)
	if name == "" || filter == "" {
		writeError(w, http.StatusUnprocessableEntity, "name and filter_key_pattern are required")
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	s := ms.lookupStream(r.PathValue("stream"))
	if s == nil {
		writeError(w, http.StatusNotFound, "Stream not found")
		return
	}
	if s.lookupConsumer(name) != nil {
		writeError(w, http.StatusConflict, "name has already been taken")
		return
	}

	c := &mockConsumer{
		id:         uuid.NewString(),
		name:       name,
		filter:     filter,
		fields:     body,
		inflight:   make(map[int64]string),
		ackIDs:     make(map[string]int64),
		acked:      make(map[int64]bool),
		insertedAt: time.Now().UTC(),
	}
	s.consumers[c.id] = c
	writeJSON(w, http.StatusOK, map[string]any{"data": consumerView(s, c)})
}

func (ms *MockServer) handleDeleteConsumer(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s, c, ok := ms.resolveConsumer(w, r)
	if !ok {
		return
	}
	delete(s.consumers, c.id)
	writeJSON(w, http.StatusOK, map[string]any{"id": c.id, "deleted": true})
}

func (ms *MockServer) handleReceive(w http.ResponseWriter, r *http.Request) {
	batchSize := defaultBatchSize
	if raw := r.URL.Query().Get("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "batch_size must be a positive integer")
			return
		}
		batchSize = n
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	s, c, ok := ms.resolveConsumer(w, r)
	if !ok {
		return
	}

	out := make([]map[string]any, 0, batchSize)
	for _, m := range s.messages {
		if len(out) >= batchSize {
			break
		}
		if !MatchKey(c.filter, m.Key) || c.acked[m.Seq] {
			continue
		}
		if _, busy := c.inflight[m.Seq]; busy {
			continue
		}
		ackID := uuid.NewString()
		c.inflight[m.Seq] = ackID
		c.ackIDs[ackID] = m.Seq
		out = append(out, map[string]any{"message": m, "ack_id": ackID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (ms *MockServer) handleAck(w http.ResponseWriter, r *http.Request) {
	ms.settle(w, r, true)
}

func (ms *MockServer) handleNack(w http.ResponseWriter, r *http.Request) {
	ms.settle(w, r, false)
}

func (ms *MockServer) settle(w http.ResponseWriter, r *http.Request, ack bool) {
	var body struct {
		AckIDs []string `json:"ack_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	_, c, ok := ms.resolveConsumer(w, r)
	if !ok {
		return
	}
	for _, id := range body.AckIDs {
		seq, known := c.ackIDs[id]
		if !known {
			continue
		}
		delete(c.ackIDs, id)
		delete(c.inflight, seq)
		if ack {
			c.acked[seq] = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// resolveConsumer writes a 404 and returns ok=false when either side is missing.
func (ms *MockServer) resolveConsumer(w http.ResponseWriter, r *http.Request) (*mockStream, *mockConsumer, bool) {
	s := ms.lookupStream(r.PathValue("stream"))
	if s == nil {
		writeError(w, http.StatusNotFound, "Stream not found")
		return nil, nil, false
	}
	c := s.lookupConsumer(r.PathValue("consumer"))
	if c == nil {
		writeError(w, http.StatusNotFound, "Consumer not found")
		return nil, nil, false
	}
	return s, c, true
}

func (ms *MockServer) streamView(s *mockStream) map[string]any {
	return map[string]any{
		"id":         s.id,
		"name":       s.name,
		"account_id": ms.accountID,
		"stats": map[string]any{
			"message_count":  len(s.messages),
			"consumer_count": len(s.consumers),
			"storage_size":   s.storage,
		},
		"inserted_at": s.insertedAt,
		"updated_at":  s.updatedAt,
	}
}

func consumerView(s *mockStream, c *mockConsumer) map[string]any {
	out := make(map[string]any, len(c.fields)+4)
	for k, v := range c.fields {
		out[k] = v
	}
	out["id"] = c.id
	out["stream_id"] = s.id
	out["inserted_at"] = c.insertedAt
	out["updated_at"] = c.insertedAt
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, summary string) {
	writeJSON(w, status, map[string]any{"summary": summary})
}
