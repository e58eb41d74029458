package storage

import (
	"fmt"
	"strings"
	"time"
)

// Package storage keeps track of deliveries the relay has already forwarded.

// Store tracks forwarded message IDs.
type Store interface {
	Close() error
	SeenMessage(id string) (bool, error)
	MarkMessage(id string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	MessageTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultMessageTTL      = 7 * 24 * time.Hour
	defaultCleanupInterval = 6 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = defaultMessageTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                     { return nil }
func (noopStore) SeenMessage(string) (bool, error) { return false, nil }
func (noopStore) MarkMessage(string) error         { return nil }
