package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clawbot/internal/store"
	"clawbot/pkg/logx"
)

// fakeStore is an in-memory JobStore.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]store.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[int64]store.Job{}}
}

func (f *fakeStore) AddJob(ctx context.Context, schedule, task, message string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.jobs[f.nextID] = store.Job{ID: f.nextID, Schedule: schedule, Task: task, Message: message, Enabled: true}
	return f.nextID, nil
}

func (f *fakeStore) EnabledJobs(ctx context.Context) ([]store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Job
	for id := int64(1); id <= f.nextID; id++ {
		if j, ok := f.jobs[id]; ok && j.Enabled {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeStore) DisableJob(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || !j.Enabled {
		return false, nil
	}
	j.Enabled = false
	f.jobs[id] = j
	return true, nil
}

func (f *fakeStore) enabled(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id].Enabled
}

// stubSchedule fires after each configured delay, then reports exhaustion.
type stubSchedule struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *stubSchedule) Next(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.delays) == 0 {
		return time.Time{}
	}
	d := s.delays[0]
	s.delays = s.delays[1:]
	return t.Add(d)
}

func (s *Scheduler) liveTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func TestAddValidatesBeforePersisting(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	s := New(fs, logx.Nop())

	tests := []string{
		"* * * *",       // 4 fields
		"* * * * * *",   // 6 fields
		"61 * * * *",    // minute out of range
		"* * * * mondy", // bad weekday
	}
	for _, schedule := range tests {
		if _, err := s.Add(context.Background(), schedule, "t", "m"); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("Add(%q) error = %v, want ErrInvalidSchedule", schedule, err)
		}
	}
	if jobs, _ := fs.EnabledJobs(context.Background()); len(jobs) != 0 {
		t.Fatalf("store mutated by failed adds: %+v", jobs)
	}
}

func TestAddThenCancelBeforeFire(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	s := New(fs, logx.Nop())

	var fired sync.Map
	s.AddCallback(func(ctx context.Context, msg string) {
		fired.Store(msg, true)
	})

	id, err := s.Add(context.Background(), "*/5 * * * *", "reminder", "ping")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	found, err := s.Cancel(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("cancel: found=%v err=%v", found, err)
	}

	// Second cancel is idempotent and reports not-found.
	found, err = s.Cancel(context.Background(), id)
	if err != nil || found {
		t.Fatalf("second cancel: found=%v err=%v", found, err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := fired.Load("ping"); ok {
		t.Fatal("cancelled job fired")
	}
	if fs.enabled(id) {
		t.Fatal("job still enabled in store after cancel")
	}
	if n := s.liveTimers(); n != 0 {
		t.Fatalf("live timers = %d, want 0", n)
	}
}

func TestFireFanOutOrderAndExhaustion(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	s := New(fs, logx.Nop())

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 4)

	s.AddCallback(func(ctx context.Context, msg string) {
		mu.Lock()
		got = append(got, "first:"+msg)
		mu.Unlock()
		done <- struct{}{}
	})
	s.AddCallback(func(ctx context.Context, msg string) {
		mu.Lock()
		got = append(got, "second:"+msg)
		mu.Unlock()
		done <- struct{}{}
	})

	id, _ := fs.AddJob(context.Background(), "stub", "t", "hello")
	job := store.Job{ID: id, Schedule: "stub", Task: "t", Message: "hello", Enabled: true}
	s.arm(job, &stubSchedule{delays: []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}})

	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for callback %d", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first:hello", "second:hello", "first:hello", "second:hello"}
	if len(got) != len(want) {
		t.Fatalf("got %d callbacks, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("callback order: got %v, want %v", got, want)
		}
	}

	// Exhausted schedule disables the store row and drops the timer.
	deadline := time.Now().Add(2 * time.Second)
	for fs.enabled(id) || s.liveTimers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("exhausted job not cleaned up: enabled=%v timers=%d", fs.enabled(id), s.liveTimers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAddCallbackDedupByIdentity(t *testing.T) {
	t.Parallel()
	s := New(newFakeStore(), logx.Nop())

	var n int
	var mu sync.Mutex
	cb := func(ctx context.Context, msg string) {
		mu.Lock()
		n++
		mu.Unlock()
	}
	s.AddCallback(cb)
	s.AddCallback(cb)

	s.fire(context.Background(), store.Job{ID: 1, Message: "x"})
	mu.Lock()
	defer mu.Unlock()
	if n != 1 {
		t.Fatalf("callback ran %d times for one fire, want 1", n)
	}
}

func TestSetCallbackReplacesAll(t *testing.T) {
	t.Parallel()
	s := New(newFakeStore(), logx.Nop())

	var old, current int
	var mu sync.Mutex
	s.AddCallback(func(ctx context.Context, msg string) { mu.Lock(); old++; mu.Unlock() })
	s.SetCallback(func(ctx context.Context, msg string) { mu.Lock(); current++; mu.Unlock() })

	s.fire(context.Background(), store.Job{ID: 1, Message: "x"})
	mu.Lock()
	defer mu.Unlock()
	if old != 0 || current != 1 {
		t.Fatalf("old=%d current=%d, want 0/1", old, current)
	}
}

func TestFireWithEmptyRegistryIsNoop(t *testing.T) {
	t.Parallel()
	s := New(newFakeStore(), logx.Nop())
	// Must not panic or error; the drop is logged by contract.
	s.fire(context.Background(), store.Job{ID: 7, Message: "dropped"})
}

func TestLoadSkipsUnparseableJobs(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	fs.AddJob(context.Background(), "*/5 * * * *", "good", "a")
	fs.AddJob(context.Background(), "not a cron line", "bad", "b")

	s := New(fs, logx.Nop())
	defer s.Stop()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if n := s.liveTimers(); n != 1 {
		t.Fatalf("live timers = %d, want 1 (invalid job skipped)", n)
	}
}

func TestStopAbortsAllTimers(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	s := New(fs, logx.Nop())

	if _, err := s.Add(context.Background(), "0 0 1 1 *", "a", "x"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.Add(context.Background(), "30 6 * * 1", "b", "y"); err != nil {
		t.Fatalf("add: %v", err)
	}

	s.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for s.liveTimers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timers alive after Stop: %d", s.liveTimers())
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Stop leaves store rows enabled so a restart can re-arm them.
	jobs, _ := fs.EnabledJobs(context.Background())
	if len(jobs) != 2 {
		t.Fatalf("store rows after Stop = %d, want 2", len(jobs))
	}
}
