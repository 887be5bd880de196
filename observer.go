package xlog

import (
	"time"
)

// Observer pattern

// Entry is sent to Observers when an event is emitted.
type Entry struct {
	At      time.Time
	Level   Level
	Context string
	Logger  string
	Thread  string
	Message string
	Fields  []Field // bound + event fields; copy per emit, safe to hold
}

// Observer is notified for each emitted entry.
// Implementations MUST be concurrency-safe.
type Observer interface {
	OnLog(entry Entry)
}

// ObserverFunc adapter.
type ObserverFunc func(Entry)

func (f ObserverFunc) OnLog(e Entry) { f(e) }
