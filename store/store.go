// Package store keeps the most recent readings of all producers in a
// bounded in-memory window and notifies subscribers about every insertion.
package store

import (
	"sort"
	"sync"

	"pifanctrl/log"
	"pifanctrl/reading"
)

const DefaultCapacity = 1000

// Listener receives one call per stored reading. Calls are made from the
// store's dispatcher goroutine, one at a time, in insertion order.
type Listener func(source string, r reading.Reading)

type subscription struct {
	id uint64
	fn Listener
}

type event struct {
	r         reading.Reading
	listeners []subscription
}

// Store is a volatile, capacity-bounded reading window.
//
// Buffer, known sources, listener registry and the notification queue share
// one mutex. Listeners run outside of it on a dispatcher goroutine, so they
// may call any Store method, including Add.
type Store struct {
	mu        sync.Mutex
	buf       *Ring[reading.Reading]
	known     map[string]struct{}
	listeners []subscription // copy-on-write
	nextID    uint64
	queue     []event
	closed    bool

	wake chan struct{}
	done chan struct{}
}

func New(capacity int) *Store {
	s := &Store{
		buf:   NewRing[reading.Reading](capacity),
		known: make(map[string]struct{}),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go s.dispatch()
	return s
}

func (s *Store) Add(r reading.Reading) {
	s.mu.Lock()
	s.push(r)
	s.mu.Unlock()
	s.signal()
}

func (s *Store) AddRange(rs ...reading.Reading) {
	if len(rs) == 0 {
		return
	}
	s.mu.Lock()
	for _, r := range rs {
		s.push(r)
	}
	s.mu.Unlock()
	s.signal()
}

// push must be called with s.mu held.
func (s *Store) push(r reading.Reading) {
	s.buf.Push(r)
	s.known[r.Source] = struct{}{}
	if !s.closed && len(s.listeners) > 0 {
		s.queue = append(s.queue, event{r: r, listeners: s.listeners})
	}
}

func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// GetAll returns a point-in-time copy, oldest first.
func (s *Store) GetAll() []reading.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Snapshot()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Latest returns the reading of source with the greatest observation time.
// On equal timestamps the later insertion wins.
func (s *Store) Latest(source string) (reading.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		latest reading.Reading
		found  bool
	)
	s.buf.Do(func(r reading.Reading) bool {
		if r.Source == source && (!found || !r.AsOf.Before(latest.AsOf)) {
			latest = r
			found = true
		}
		return true
	})
	return latest, found
}

func (s *Store) GetLatest(source string) (float64, bool) {
	r, ok := s.Latest(source)
	return r.Value, ok
}

// Sources lists every source that was ever added, sorted.
func (s *Store) Sources() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.known))
	for src := range s.known {
		out = append(out, src)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Subscribe registers fn for all readings added from now on. The returned
// function removes the registration; events already queued are still
// delivered to it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	ls := make([]subscription, len(s.listeners), len(s.listeners)+1)
	copy(ls, s.listeners)
	s.listeners = append(ls, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			ls := make([]subscription, 0, len(s.listeners))
			for _, l := range s.listeners {
				if l.id != id {
					ls = append(ls, l)
				}
			}
			s.listeners = ls
		})
	}
}

// Close delivers the pending notifications and stops the dispatcher.
// Readings added afterwards are stored but not announced.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.signal()
	<-s.done
}

func (s *Store) dispatch() {
	defer close(s.done)
	for range s.wake {
		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, ev := range pending {
			for _, l := range ev.listeners {
				deliver(l, ev.r)
			}
		}

		if closed {
			s.mu.Lock()
			empty := len(s.queue) == 0
			s.mu.Unlock()
			if empty {
				return
			}
			s.signal()
		}
	}
}

func deliver(l subscription, r reading.Reading) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("reading listener %d panicked on %s/%s: %v", l.id, r.Source, r.Measurement(), p)
		}
	}()
	l.fn(r.Source, r)
}
