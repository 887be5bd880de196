package amqpadapter

import "sync/atomic"

type stats struct {
	published     atomic.Uint64
	dropped       atomic.Uint64
	publishErrors atomic.Uint64
	connectErrors atomic.Uint64
	reconnects    atomic.Uint64
	unreported    atomic.Uint64
}

// StatsSnapshot is a point-in-time counters snapshot. Dropped counts every
// record that was not published, PublishErrors only those the broker
// rejected or failed. Unreported counts failures that overlapped a running
// ErrorHandler call.
type StatsSnapshot struct {
	Published     uint64
	Dropped       uint64
	PublishErrors uint64
	ConnectErrors uint64
	Reconnects    uint64
	Unreported    uint64
}

func (s *stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Published:     s.published.Load(),
		Dropped:       s.dropped.Load(),
		PublishErrors: s.publishErrors.Load(),
		ConnectErrors: s.connectErrors.Load(),
		Reconnects:    s.reconnects.Load(),
		Unreported:    s.unreported.Load(),
	}
}

func (s *stats) reset() {
	s.published.Store(0)
	s.dropped.Store(0)
	s.publishErrors.Store(0)
	s.connectErrors.Store(0)
	s.reconnects.Store(0)
	s.unreported.Store(0)
}
