// Package metering aggregates delivery outcomes per destination so operators
// can see what the forwarder has been doing.
package metering

import (
	"cmp"
	"slices"
	"strconv"
	"sync"
	"time"
)

type Kind string

const (
	KindChannel Kind = "channel"
	KindDirect  Kind = "direct"
)

// Meter tracks deliveries to one target.
type Meter struct {
	Kind         Kind
	Target       int64
	Sent         int64
	Failed       int64
	LastError    string
	LastActivity time.Time
}

type Store struct {
	mu      sync.RWMutex
	meters  map[string]*Meter
	started time.Time
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		meters:  make(map[string]*Meter),
		started: time.Now(),
		now:     time.Now,
	}
}

func key(kind Kind, target int64) string {
	return string(kind) + ":" + strconv.FormatInt(target, 10)
}

// Record adds one delivery attempt; err == nil counts as sent.
func (s *Store) Record(kind Kind, target int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(kind, target)
	m, ok := s.meters[k]
	if !ok {
		m = &Meter{Kind: kind, Target: target}
		s.meters[k] = m
	}

	if err != nil {
		m.Failed++
		m.LastError = err.Error()
	} else {
		m.Sent++
	}
	m.LastActivity = s.now()
}

func (s *Store) Get(kind Kind, target int64) (Meter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meters[key(kind, target)]
	if !ok {
		return Meter{}, false
	}
	return *m, true
}

// Snapshot returns copies of all meters ordered by kind then target.
func (s *Store) Snapshot() []Meter {
	s.mu.RLock()
	out := make([]Meter, 0, len(s.meters))
	for _, m := range s.meters {
		out = append(out, *m)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Meter) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.Target, b.Target)
	})
	return out
}

// Totals sums sent and failed deliveries of the given kind.
func (s *Store) Totals(kind Kind) (sent, failed int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.meters {
		if m.Kind == kind {
			sent += m.Sent
			failed += m.Failed
		}
	}
	return sent, failed
}

func (s *Store) Uptime() time.Duration {
	return s.now().Sub(s.started)
}
