package chatclient

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// LogEntry is one rendered unit of the message log. Created is for display
// only; Seq is the arrival position.
type LogEntry struct {
	Seq     uint64    `json:"seq"`
	Text    string    `json:"text"`
	Error   bool      `json:"error,omitempty"`
	Created time.Time `json:"created"`
}

// View renders log entries. Append is called once per entry, in log order.
type View interface {
	Append(e LogEntry)
	ScrollToLatest()
}

// Log is the append-only message log shared by the inbound path and the
// publish-failure path. Rendering and persistence happen under the append
// lock, so the view sees entries in exactly the order they were appended.
type Log struct {
	mu         sync.Mutex
	entries    []LogEntry
	next       uint64
	view       View
	transcript *Transcript
	clock      clock.Clock
}

// NewLog returns an empty log rendering to view. view and transcript may be nil.
func NewLog(view View, transcript *Transcript, clk clock.Clock) *Log {
	if clk == nil {
		clk = clock.New()
	}
	return &Log{
		entries:    make([]LogEntry, 0, 64),
		view:       view,
		transcript: transcript,
		clock:      clk,
	}
}

// Append adds a new entry at the end of the log and returns it.
func (l *Log) Append(text string, isError bool) LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := LogEntry{Seq: l.next, Text: text, Error: isError, Created: l.clock.Now()}
	l.next++
	l.entries = append(l.entries, e)
	if l.view != nil {
		l.view.Append(e)
	}
	if err := l.transcript.Append(e); err != nil {
		log.Debug().Err(err).Uint64("seq", e.Seq).Msg("[dm-chat] persist log entry")
	}
	return e
}

// ScrollToLatest asks the view to reveal the newest entry.
func (l *Log) ScrollToLatest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.view != nil {
		l.view.ScrollToLatest()
	}
}

// Entries returns a snapshot of the log in order.
func (l *Log) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// bootstrap preloads persisted history and renders it. New entries continue
// the persisted sequence.
func (l *Log) bootstrap(history []LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range history {
		l.entries = append(l.entries, e)
		if e.Seq >= l.next {
			l.next = e.Seq + 1
		}
		if l.view != nil {
			l.view.Append(e)
		}
	}
	if l.view != nil {
		l.view.ScrollToLatest()
	}
}
