package subscriptions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Package subscriptions loads the stream/consumer pairs the relay pulls from.

const (
	defaultBatchSize = 10
	defaultFilter    = ">"
)

// Subscription binds one consumer of one stream to the relay.
type Subscription struct {
	ID               string         `json:"id" yaml:"id"`
	Stream           string         `json:"stream" yaml:"stream"`
	Consumer         string         `json:"consumer" yaml:"consumer"`
	FilterKeyPattern string         `json:"filter_key_pattern" yaml:"filter_key_pattern"`
	BatchSize        int            `json:"batch_size" yaml:"batch_size"`
	Ensure           bool           `json:"ensure" yaml:"ensure"`
	StreamOptions    map[string]any `json:"stream_options" yaml:"stream_options"`
	ConsumerOptions  map[string]any `json:"consumer_options" yaml:"consumer_options"`
}

type fileFormat struct {
	Subscriptions []Subscription `json:"subscriptions" yaml:"subscriptions"`
}

// Registry is an immutable, validated set of subscriptions.
type Registry struct {
	subs []Subscription
	idx  map[string]Subscription
}

// LoadRegistry reads subscriptions from a YAML or JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("subscriptions file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions file: %w", err)
	}

	parsed, err := parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NewRegistry(parsed.Subscriptions)
}

// NewRegistry sanitizes and validates subs.
func NewRegistry(subs []Subscription) (*Registry, error) {
	if len(subs) == 0 {
		return nil, errors.New("no subscriptions configured")
	}

	reg := &Registry{
		subs: make([]Subscription, len(subs)),
		idx:  make(map[string]Subscription, len(subs)),
	}
	for i := range subs {
		s := sanitize(subs[i])
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
		if _, dup := reg.idx[s.ID]; dup {
			return nil, fmt.Errorf("duplicate subscription id %q", s.ID)
		}
		reg.subs[i] = s
		reg.idx[s.ID] = s
	}
	return reg, nil
}

func parse(data []byte, ext string) (fileFormat, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var out fileFormat
		if err := d.fn(data, &out); err == nil {
			return out, nil
		}
	}
	return fileFormat{}, errors.New("subscriptions file format not recognized (expected YAML or JSON)")
}

func sanitize(s Subscription) Subscription {
	s.ID = strings.TrimSpace(s.ID)
	s.Stream = strings.TrimSpace(s.Stream)
	s.Consumer = strings.TrimSpace(s.Consumer)
	s.FilterKeyPattern = strings.TrimSpace(s.FilterKeyPattern)

	if s.ID == "" && s.Stream != "" && s.Consumer != "" {
		s.ID = s.Stream + "/" + s.Consumer
	}
	if s.FilterKeyPattern == "" {
		s.FilterKeyPattern = defaultFilter
	}
	if s.BatchSize <= 0 {
		s.BatchSize = defaultBatchSize
	}
	return s
}

func validate(s Subscription) error {
	if s.Stream == "" {
		return errors.New("stream is required")
	}
	if s.Consumer == "" {
		return fmt.Errorf("consumer is required for subscription on stream %q", s.Stream)
	}
	if s.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

// All returns a copy of every subscription in file order.
func (r *Registry) All() []Subscription {
	if r == nil {
		return nil
	}
	out := make([]Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// ByID returns the subscription with the given id.
func (r *Registry) ByID(id string) (Subscription, bool) {
	if r == nil {
		return Subscription{}, false
	}
	s, ok := r.idx[strings.TrimSpace(id)]
	return s, ok
}
