package fsm

// Ticker is anything the Scheduler can advance. *Machine[S] implements it
// for every S.
type Ticker interface {
	Tick()
}

// Scheduler owns the set of live machines and ticks them in registration
// order.
//
// A Scheduler replaces process-wide registries: each reactor owns one, and a
// client removes its machine when it is closed, so nothing stays registered
// by accident.
type Scheduler struct {
	order   []Ticker
	members map[Ticker]struct{}
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{members: make(map[Ticker]struct{})}
}

// Add registers t. Returns false if t was already registered.
func (s *Scheduler) Add(t Ticker) bool {
	if _, ok := s.members[t]; ok {
		return false
	}
	s.members[t] = struct{}{}
	s.order = append(s.order, t)
	return true
}

// Remove deregisters t. Returns false if t was not registered.
func (s *Scheduler) Remove(t Ticker) bool {
	if _, ok := s.members[t]; !ok {
		return false
	}
	delete(s.members, t)
	for i, cur := range s.order {
		if cur == t {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of registered tickers.
func (s *Scheduler) Len() int {
	return len(s.order)
}

// TickAll ticks every registered ticker once.
//
// The set is snapshotted first: tickers added during the pass wait for the
// next call, and tickers removed during the pass are skipped.
func (s *Scheduler) TickAll() {
	snapshot := make([]Ticker, len(s.order))
	copy(snapshot, s.order)

	for _, t := range snapshot {
		if _, ok := s.members[t]; !ok {
			continue
		}
		t.Tick()
	}
}
