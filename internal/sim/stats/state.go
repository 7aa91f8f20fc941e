package stats

import "sync/atomic"

// State owns the current snapshot. The frame loop publishes; binding readers load. A snapshot
// is never mutated after Publish, so readers always see a whole value.
type State struct {
	cur atomic.Pointer[Snapshot]
	seq atomic.Uint64
}

func NewState() *State {
	s := &State{}
	s.cur.Store(&Snapshot{})
	return s
}

// Publish stamps snap with the next sequence number and makes it current.
func (s *State) Publish(snap Snapshot) Snapshot {
	snap.Seq = s.seq.Add(1)
	s.cur.Store(&snap)
	return snap
}

func (s *State) Current() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	if p := s.cur.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

// Clear drops back to the empty snapshot. The sequence keeps counting.
func (s *State) Clear() {
	s.cur.Store(&Snapshot{Seq: s.seq.Add(1)})
}
