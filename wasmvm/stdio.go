package wasmvm

import (
	"fmt"
	"sync"
	"time"
)

// Stream identifies the captured output stream of an Entry.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Entry is one captured IO line. Entries are kept in the exact order the guest
// produced them and are never reordered or deduplicated.
type Entry struct {
	Stream    Stream    `json:"stream"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer is the append-only IO capture buffer of a single invocation.
// A limit of zero means unbounded.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
	dropped int
	now     func() time.Time
}

// NewBuffer creates a buffer that accepts at most limit entries.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit, now: time.Now}
}

// Write appends an entry. It reports false when the buffer is full; the entry
// is then counted as dropped instead of evicting older ones.
func (b *Buffer) Write(stream Stream, message string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && len(b.entries) >= b.limit {
		b.dropped++
		return false
	}
	b.entries = append(b.entries, Entry{Stream: stream, Message: message, Timestamp: b.now()})
	return true
}

func (b *Buffer) Stdout(message string) bool { return b.Write(Stdout, message) }

func (b *Buffer) Stderr(message string) bool { return b.Write(Stderr, message) }

// Snapshot returns a copy of every entry written so far.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Stream returns the entries of one stream, in order.
func (b *Buffer) Stream(stream Stream) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Entry
	for _, e := range b.entries {
		if e.Stream == stream {
			out = append(out, e)
		}
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Dropped is the number of writes rejected because the limit was reached.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.dropped = 0
}

// seal appends the overflow notice, bypassing the limit so the notice itself
// is never lost.
func (b *Buffer) seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropped == 0 {
		return
	}
	b.entries = append(b.entries, Entry{
		Stream:    Stderr,
		Message:   fmt.Sprintf("io limit of %d entries reached, %d entries dropped", b.limit, b.dropped),
		Timestamp: b.now(),
	})
}

// Run is the captured IO of one finished invocation.
type Run struct {
	RecordID int32   `json:"recordId"`
	Entries  []Entry `json:"entries"`
	Trap     string  `json:"trap,omitempty"`
}

// SessionLog keeps the runs of one editing session in invocation order. It is
// only cleared by Reset.
type SessionLog struct {
	mu   sync.Mutex
	runs []Run
}

func NewSessionLog() *SessionLog {
	return &SessionLog{}
}

func (s *SessionLog) Append(r *Result) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, Run{RecordID: r.RecordID, Entries: r.Entries, Trap: r.Trap})
}

func (s *SessionLog) Snapshot() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, len(s.runs))
	copy(out, s.runs)
	return out
}

func (s *SessionLog) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = nil
}
