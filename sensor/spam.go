package sensor

import "sync"

// Spam counts consecutive failures per key so that a broken sensor is
// reported on its first failure and then only every 100th time.
// The zero value is ready to use.
type Spam struct {
	mu       sync.Mutex
	failures map[string]int
}

const spamEvery = 100

// Failed records one more failure of key and reports whether it should be
// logged.
func (s *Spam) Failed(key string) (count int, report bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == nil {
		s.failures = make(map[string]int)
	}
	s.failures[key]++
	count = s.failures[key]
	return count, count < 2 || count%spamEvery == 0
}

// Recovered clears the failure count of key and returns how many failures
// preceded the recovery.
func (s *Spam) Recovered(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.failures[key]
	delete(s.failures, key)
	return n
}
