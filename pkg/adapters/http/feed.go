package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/relay/pkg/domain"
)

// Feed fans finalized receipts out to SSE subscribers.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	logger      *slog.Logger
}

// NewFeed creates an empty Feed. A nil logger discards output.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Feed{
		subscribers: make(map[chan string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel.
func (f *Feed) Subscribe() (<-chan string, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan string, 16)
	f.subscribers[ch] = struct{}{}

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
	}
}

// Publish broadcasts rcpt without blocking. It matches the chain finalize
// hook signature.
func (f *Feed) Publish(rcpt domain.Receipt) {
	msg, err := json.Marshal(rcpt)
	if err != nil {
		f.logger.Error("feed: encode receipt", "receipt", rcpt.ID, "err", err)
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subscribers {
		select {
		case ch <- string(msg):
		default:
			// Drop message if channel is full (slow client)
			f.logger.Warn("SSE: client buffer full, dropping receipt", "receipt", rcpt.ID)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}
