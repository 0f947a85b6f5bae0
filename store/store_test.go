package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"pifanctrl/reading"
)

var base = time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC)

func temp(source string, value float64, offset time.Duration) reading.Reading {
	return reading.NewTemperature(source, value, false).At(base.Add(offset))
}

func waitFor(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case s := <-ch:
			got = append(got, s)
		case <-timeout:
			t.Fatalf("timed out after %d of %d notifications", len(got), n)
		}
	}
	return got
}

func TestGetAllKeepsNewestInInsertionOrder(t *testing.T) {
	s := New(5)
	defer s.Close()

	for i := 0; i < 12; i++ {
		s.Add(temp("A", float64(i), time.Duration(i)*time.Second))
	}

	all := s.GetAll()
	if len(all) != 5 {
		t.Fatalf("expected 5 readings, got %d", len(all))
	}
	for i, r := range all {
		if want := float64(7 + i); r.Value != want {
			t.Errorf("reading %d: got %v, want %v", i, r.Value, want)
		}
	}
}

func TestGetLatestBySource(t *testing.T) {
	s := New(DefaultCapacity)
	defer s.Close()

	s.AddRange(
		temp("A", 10, 1*time.Second),
		temp("A", 20, 2*time.Second),
		temp("B", 99, 1500*time.Millisecond),
	)

	if v, ok := s.GetLatest("A"); !ok || v != 20 {
		t.Errorf("GetLatest(A): got %v/%v, want 20/true", v, ok)
	}
	if v, ok := s.GetLatest("B"); !ok || v != 99 {
		t.Errorf("GetLatest(B): got %v/%v, want 99/true", v, ok)
	}
	if _, ok := s.GetLatest("unknown"); ok {
		t.Error("GetLatest(unknown): expected no value")
	}
}

func TestGetLatestUsesObservationTime(t *testing.T) {
	s := New(10)
	defer s.Close()

	s.Add(temp("A", 20, 2*time.Second))
	s.Add(temp("A", 10, 1*time.Second)) // late arrival of an older reading

	if v, _ := s.GetLatest("A"); v != 20 {
		t.Errorf("GetLatest(A): got %v, want 20", v)
	}

	s.Add(temp("A", 30, 2*time.Second))
	if v, _ := s.GetLatest("A"); v != 30 {
		t.Errorf("equal timestamps should prefer the later insertion, got %v", v)
	}
}

func TestGetAllReturnsACopy(t *testing.T) {
	s := New(3)
	defer s.Close()

	s.Add(temp("A", 1, 0))
	snap := s.GetAll()
	s.Add(temp("A", 2, time.Second))

	if len(snap) != 1 {
		t.Errorf("snapshot grew to %d", len(snap))
	}
}

func TestSources(t *testing.T) {
	s := New(2)
	defer s.Close()

	s.Add(temp("B", 1, 0))
	s.Add(temp("A", 1, 0))
	s.Add(temp("C", 1, 0)) // evicts B from the window

	got := s.Sources()
	if fmt.Sprint(got) != "[A B C]" {
		t.Errorf("Sources: got %v", got)
	}
}

func TestNotificationsFollowInsertionOrder(t *testing.T) {
	s := New(100)
	defer s.Close()

	ch := make(chan string, 100)
	s.Subscribe(func(source string, r reading.Reading) {
		ch <- fmt.Sprintf("%s=%v", source, r.Value)
	})

	s.Add(temp("A", 1, 0))
	s.AddRange(temp("B", 2, 0), temp("A", 3, 0))
	s.Add(temp("A", 4, 0))

	got := waitFor(t, ch, 4)
	want := []string{"A=1", "B=2", "A=3", "A=4"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("notifications: got %v, want %v", got, want)
	}
}

func TestListenerMayAddWithoutDeadlock(t *testing.T) {
	s := New(100)
	defer s.Close()

	ch := make(chan string, 10)
	s.Subscribe(func(source string, r reading.Reading) {
		if source == "A" {
			s.Add(temp("echo", r.Value, 0))
			_, _ = s.GetLatest("A")
		}
		ch <- source
	})

	s.Add(temp("A", 1, 0))

	got := waitFor(t, ch, 2)
	if fmt.Sprint(got) != "[A echo]" {
		t.Errorf("notifications: got %v", got)
	}
	if v, ok := s.GetLatest("echo"); !ok || v != 1 {
		t.Errorf("echo reading not stored: %v/%v", v, ok)
	}
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	s := New(10)
	defer s.Close()

	s.Subscribe(func(string, reading.Reading) { panic("boom") })
	ch := make(chan string, 10)
	s.Subscribe(func(source string, _ reading.Reading) { ch <- source })

	s.Add(temp("A", 1, 0))
	s.Add(temp("B", 2, 0))

	got := waitFor(t, ch, 2)
	if fmt.Sprint(got) != "[A B]" {
		t.Errorf("notifications: got %v", got)
	}
	if s.Len() != 2 {
		t.Errorf("store length: got %d, want 2", s.Len())
	}
}

func TestUnsubscribe(t *testing.T) {
	s := New(10)

	var mu sync.Mutex
	count := 0
	unsubscribe := s.Subscribe(func(string, reading.Reading) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	ch := make(chan string, 10)
	s.Subscribe(func(source string, _ reading.Reading) { ch <- source })

	s.Add(temp("A", 1, 0))
	waitFor(t, ch, 1)
	unsubscribe()
	unsubscribe()
	s.Add(temp("B", 1, 0))
	waitFor(t, ch, 1)
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("unsubscribed listener called %d times, want 1", count)
	}
}

func TestCloseDrainsPendingNotifications(t *testing.T) {
	s := New(100)

	var mu sync.Mutex
	var got []float64
	s.Subscribe(func(_ string, r reading.Reading) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		got = append(got, r.Value)
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		s.Add(temp("A", float64(i), 0))
	}
	s.Close()
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 20 {
		t.Fatalf("delivered %d of 20 notifications before Close returned", len(got))
	}

	s.Add(temp("A", 99, time.Hour))
	if v, _ := s.GetLatest("A"); v != 99 {
		t.Errorf("Add after Close should still store, got %v", v)
	}
}

// Eviction is oldest first, so whenever a tracked reading is still present
// the newest one must be among them.
func TestGetLatestUnderWritePressure(t *testing.T) {
	s := New(50)
	defer s.Close()

	const writers = 8
	const perWriter = 2000

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			src := fmt.Sprintf("noise-%d", w)
			for i := 0; i < perWriter; i++ {
				s.Add(temp(src, float64(i), time.Duration(i)*time.Millisecond))
			}
		}(w)
	}

	stop := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		last := -1.0
		for i := 0; ; i++ {
			select {
			case <-stop:
				close(errs)
				return
			default:
			}
			s.Add(temp("tracked", float64(i), time.Duration(i)*time.Millisecond))
			v, ok := s.GetLatest("tracked")
			if !ok {
				continue
			}
			if v < last || v != float64(i) {
				errs <- fmt.Errorf("after adding %d: got %v/%v, previous %v", i, v, ok, last)
				close(errs)
				return
			}
			last = v
		}
	}()

	wg.Wait()
	close(stop)
	if err := <-errs; err != nil {
		t.Fatal(err)
	}
}
