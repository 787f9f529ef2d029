// Package conlog captures browser console output and classifies it.
//
// The bridge frontend has no structured event channel for its WebSocket
// lifecycle; it narrates it to the console with emoji-tagged lines. conlog
// accumulates every console message emitted while a page is observed and
// offers substring-marker filtering so specs can approximate discrete
// backend events (connect, reconnect, cleanup, subscription) from that
// informal channel. Matching is plain containment: there is no stronger
// contract to encode.
package conlog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Lifecycle markers the bridge frontend emits. These are the de facto
// contract with the application under test.
const (
	MarkerConnect   = "🔌"
	MarkerReconnect = "🔄"
	MarkerSubscribe = "📡"
	MarkerCleanup   = "🧹"
)

// Record is one captured console message, in arrival order.
type Record struct {
	Kind string    // console API used: log, info, warn, error, debug
	Text string    // space-joined stringified arguments
	Time time.Time // capture time, not browser time
}

// Buffer accumulates console records for the lifetime of one spec.
type Buffer struct {
	mu         sync.RWMutex
	records    []Record
	exceptions []string
}

// Attach subscribes the buffer to a page's console and exception events.
// Capture stops when ctx is cancelled. Call before the page performs the
// actions whose logs matter; events emitted earlier are not replayed.
func (b *Buffer) Attach(ctx context.Context, page *rod.Page) {
	go page.Context(ctx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			parts = append(parts, arg.Value.Str())
		}
		b.append(Record{
			Kind: string(e.Type),
			Text: strings.Join(parts, " "),
			Time: time.Now(),
		})
	}, func(e *proto.RuntimeExceptionThrown) {
		b.mu.Lock()
		b.exceptions = append(b.exceptions, e.ExceptionDetails.Text)
		b.mu.Unlock()
	})()
}

func (b *Buffer) append(r Record) {
	b.mu.Lock()
	b.records = append(b.records, r)
	b.mu.Unlock()
}

// All returns a copy of every record captured so far, in arrival order.
func (b *Buffer) All() []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

// Matching returns only the records whose text contains marker, preserving
// arrival order.
func (b *Buffer) Matching(marker string) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Record
	for _, r := range b.records {
		if strings.Contains(r.Text, marker) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many records contain marker.
func (b *Buffer) Count(marker string) int {
	return len(b.Matching(marker))
}

// Exceptions returns captured uncaught page exceptions.
func (b *Buffer) Exceptions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.exceptions))
	copy(out, b.exceptions)
	return out
}

// Reset discards everything captured so far. The subscription stays live.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.records = nil
	b.exceptions = nil
	b.mu.Unlock()
}

// Lifecycle summarises the WebSocket lifecycle inferred from the captured
// console text.
type Lifecycle struct {
	Connects      int
	Reconnects    int
	Subscriptions int
	Cleanups      int
}

// Lifecycle buckets the buffered records by the emoji markers.
func (b *Buffer) Lifecycle() Lifecycle {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var lc Lifecycle
	for _, r := range b.records {
		switch {
		case strings.Contains(r.Text, MarkerConnect):
			lc.Connects++
		case strings.Contains(r.Text, MarkerReconnect):
			lc.Reconnects++
		case strings.Contains(r.Text, MarkerSubscribe):
			lc.Subscriptions++
		case strings.Contains(r.Text, MarkerCleanup):
			lc.Cleanups++
		}
	}
	return lc
}
