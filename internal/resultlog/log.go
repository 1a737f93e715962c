// Package resultlog collects the categorized findings of one check pass.
//
// Messages keep the exact order in which they were added. Export views group
// by category in enumeration order and keep insertion order within a
// category; none of them sort or deduplicate.
package resultlog

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrMissingMessage is returned by Add when the message text is empty.
var ErrMissingMessage = errors.New("missing message")

// Category classifies a finding. The numeric order is the export order.
type Category int

const (
	// DataQuality marks well-formed but implausible values.
	DataQuality Category = iota
	// DataSource marks upstream values that stopped moving.
	DataSource
	// DataEntry marks problems in the human data production process.
	DataEntry
	// InternalError marks failures of the checks themselves.
	InternalError
)

// Categories lists every category in export order.
var Categories = []Category{DataQuality, DataSource, DataEntry, InternalError}

// String returns the human label, e.g. "data quality".
func (c Category) String() string {
	switch c {
	case DataQuality:
		return "data quality"
	case DataSource:
		return "data source"
	case DataEntry:
		return "data entry"
	case InternalError:
		return "internal error"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Key returns the upper-snake identifier used as a JSON key, e.g. "DATA_QUALITY".
func (c Category) Key() string {
	return strings.ToUpper(strings.ReplaceAll(c.String(), " ", "_"))
}

// ParseCategory accepts either the label or the key form.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(s, c.String()) || strings.EqualFold(s, c.Key()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Message is one immutable finding.
type Message struct {
	Category  Category `json:"-"`
	Location  string   `json:"location"`
	Text      string   `json:"message"`
	ElapsedMS int64    `json:"ms"`
}

// Log is an append-only record of findings for one check pass. It is safe
// for concurrent use; concurrent appends interleave in lock order.
type Log struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	runID    string
	loadedAt time.Time
	last     time.Time
	messages []Message
}

// New creates an empty log. A nil clock uses real time.
func New(clock clockwork.Clock) *Log {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()
	return &Log{
		clock:    clock,
		runID:    uuid.NewString(),
		loadedAt: now,
		last:     now,
	}
}

// RunID identifies the check pass that produced the log.
func (l *Log) RunID() string { return l.runID }

// LoadedAt is when the pass started.
func (l *Log) LoadedAt() time.Time { return l.loadedAt }

// Add appends a finding, recording the time elapsed since the previous Add.
func (l *Log) Add(category Category, location, message string) error {
	if message == "" {
		return ErrMissingMessage
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	elapsed := now.Sub(l.last).Milliseconds()
	l.last = now

	l.messages = append(l.messages, Message{
		Category:  category,
		Location:  location,
		Text:      message,
		ElapsedMS: elapsed,
	})
	return nil
}

// DataQuality records a formatted data-quality finding.
func (l *Log) DataQuality(location, format string, args ...any) {
	_ = l.Add(DataQuality, location, fmt.Sprintf(format, args...))
}

// DataSource records a formatted data-source finding.
func (l *Log) DataSource(location, format string, args ...any) {
	_ = l.Add(DataSource, location, fmt.Sprintf(format, args...))
}

// DataEntry records a formatted data-entry finding.
func (l *Log) DataEntry(location, format string, args ...any) {
	_ = l.Add(DataEntry, location, fmt.Sprintf(format, args...))
}

// InternalError records a formatted internal error.
func (l *Log) InternalError(location, format string, args ...any) {
	_ = l.Add(InternalError, location, fmt.Sprintf(format, args...))
}

// Merge appends every message of other, in its order, keeping the original
// elapsed times. Used to fold per-region logs into the run log.
func (l *Log) Merge(other *Log) {
	if other == nil || other == l {
		return
	}
	msgs := other.Messages()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msgs...)
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Messages returns a copy of all messages in insertion order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

// ByCategory returns the messages of one category in insertion order.
func (l *Log) ByCategory(category Category) []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Message
	for _, m := range l.messages {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

// Grouped returns every message grouped by category in enumeration order,
// insertion order within a group. All export views use this order.
func (l *Log) Grouped() []Message {
	var out []Message
	for _, c := range Categories {
		out = append(out, l.ByCategory(c)...)
	}
	return out
}

// Counts returns the number of messages per category.
func (l *Log) Counts() map[Category]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[Category]int, len(Categories))
	for _, m := range l.messages {
		counts[m.Category]++
	}
	return counts
}
