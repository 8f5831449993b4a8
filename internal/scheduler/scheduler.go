// Package scheduler turns persisted cron jobs into live, cancellable timers.
//
// # Overview
//
// Every enabled job owns one goroutine: compute the next fire time from its
// 5-field cron expression, sleep until then, dispatch the job's message to
// every registered callback in order, re-arm. Jobs are independent; a slow
// callback stalls only its own job's next firing.
//
// The job store is the source of truth. Add validates before any store write,
// Cancel disables the row before aborting the timer, and a schedule with no
// further occurrences disables its row on the way out so the store never
// enumerates jobs that nothing backs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"clawbot/internal/store"
	"clawbot/pkg/logx"
)

// Callback consumes a fired job's message payload. Callbacks run sequentially
// per fire event and are given no deadline; they must be fast or self-offload.
type Callback func(ctx context.Context, message string)

// JobStore is the persistence contract the engine needs.
type JobStore interface {
	AddJob(ctx context.Context, schedule, task, message string) (int64, error)
	EnabledJobs(ctx context.Context) ([]store.Job, error)
	DisableJob(ctx context.Context, id int64) (bool, error)
}

// ErrInvalidSchedule wraps cron validation failures from Add.
var ErrInvalidSchedule = errors.New("invalid cron schedule")

type timer struct {
	cancel context.CancelFunc
}

type Scheduler struct {
	log    logx.Logger
	store  JobStore
	parser cron.Parser

	mu     sync.Mutex
	timers map[int64]*timer

	cbMu      sync.RWMutex
	callbacks []Callback
}

func New(st JobStore, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		log:    log,
		store:  st,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		timers: map[int64]*timer{},
	}
}

// SetCallback replaces the whole consumer set with a single callback.
func (s *Scheduler) SetCallback(cb Callback) {
	s.cbMu.Lock()
	s.callbacks = []Callback{cb}
	s.cbMu.Unlock()
}

// AddCallback appends a consumer unless the same function is already
// registered. Identity is the function pointer, mirroring how consumers
// register themselves once at startup.
func (s *Scheduler) AddCallback(cb Callback) {
	if cb == nil {
		return
	}
	ptr := reflect.ValueOf(cb).Pointer()
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	for _, existing := range s.callbacks {
		if reflect.ValueOf(existing).Pointer() == ptr {
			return
		}
	}
	s.callbacks = append(s.callbacks, cb)
}

// Validate checks that schedule is structurally a 5-field cron expression
// and that the cron parser accepts it.
func (s *Scheduler) Validate(schedule string) error {
	_, err := s.parse(schedule)
	return err
}

func (s *Scheduler) parse(schedule string) (cron.Schedule, error) {
	if len(strings.Fields(schedule)) != 5 {
		return nil, fmt.Errorf("%w: needs 5 fields (minute hour day month weekday)", ErrInvalidSchedule)
	}
	sched, err := s.parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return sched, nil
}

// Add validates, persists, and arms a new job. On validation failure the
// store is never touched.
func (s *Scheduler) Add(ctx context.Context, schedule, task, message string) (int64, error) {
	sched, err := s.parse(schedule)
	if err != nil {
		return 0, err
	}

	id, err := s.store.AddJob(ctx, schedule, task, message)
	if err != nil {
		return 0, fmt.Errorf("persist job: %w", err)
	}

	job := store.Job{ID: id, Schedule: schedule, Task: task, Message: message, Enabled: true}
	s.arm(job, sched)
	s.log.Info("added cron job",
		logx.Int64("id", id), logx.String("task", task), logx.String("schedule", schedule))
	return id, nil
}

// Cancel disables the job in the store and aborts its live timer, if any.
// Returns whether the store found an enabled job; cancelling twice reports
// false the second time rather than erroring.
func (s *Scheduler) Cancel(ctx context.Context, id int64) (bool, error) {
	found, err := s.store.DisableJob(ctx, id)
	if err != nil {
		return false, fmt.Errorf("disable job: %w", err)
	}

	s.mu.Lock()
	t := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()
	if t != nil {
		t.cancel()
	}

	if found {
		s.log.Info("cancelled cron job", logx.Int64("id", id))
	}
	return found, nil
}

// Load arms every enabled job from the store. A job whose stored schedule no
// longer parses is logged and skipped; it never fails the batch.
func (s *Scheduler) Load(ctx context.Context) error {
	jobs, err := s.store.EnabledJobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	loaded := 0
	for _, job := range jobs {
		sched, err := s.parser.Parse(job.Schedule)
		if err != nil {
			s.log.Warn("skipping job with unparseable schedule",
				logx.Int64("id", job.ID), logx.String("schedule", job.Schedule), logx.Err(err))
			continue
		}
		s.arm(job, sched)
		loaded++
	}
	s.log.Info("loaded cron jobs", logx.Int("count", loaded), logx.Int("stored", len(jobs)))
	return nil
}

// List enumerates the enabled jobs straight from the store.
func (s *Scheduler) List(ctx context.Context) ([]store.Job, error) {
	return s.store.EnabledJobs(ctx)
}

// Stop aborts every live timer. The store is left untouched; jobs re-arm on
// the next Load.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	timers := s.timers
	s.timers = map[int64]*timer{}
	s.mu.Unlock()

	for _, t := range timers {
		t.cancel()
	}
	if len(timers) > 0 {
		s.log.Info("scheduler stopped", logx.Int("aborted", len(timers)))
	}
}

// arm registers a live timer for job and starts its fire loop. An existing
// timer for the same id is replaced.
func (s *Scheduler) arm(job store.Job, sched cron.Schedule) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &timer{cancel: cancel}

	s.mu.Lock()
	if old := s.timers[job.ID]; old != nil {
		old.cancel()
	}
	s.timers[job.ID] = t
	s.mu.Unlock()

	go s.run(ctx, t, job, sched)
}

func (s *Scheduler) run(ctx context.Context, self *timer, job store.Job, sched cron.Schedule) {
	defer s.drop(job.ID, self)

	for {
		next := sched.Next(time.Now())
		if next.IsZero() {
			s.exhaust(job)
			return
		}

		// A next time already past fires immediately: NewTimer with a
		// non-positive duration fires on the next tick.
		wait := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case <-wait.C:
		}

		s.fire(ctx, job)
		if ctx.Err() != nil {
			return
		}
	}
}

// fire dispatches the job's message to every registered callback, in
// registration order. An empty registry drops the message with a log line;
// that is the contract, not an error.
func (s *Scheduler) fire(ctx context.Context, job store.Job) {
	s.log.Info("cron job triggered", logx.Int64("id", job.ID), logx.String("task", job.Task))

	s.cbMu.RLock()
	cbs := append([]Callback(nil), s.callbacks...)
	s.cbMu.RUnlock()

	if len(cbs) == 0 {
		s.log.Warn("no callbacks registered; cron message dropped", logx.Int64("id", job.ID))
		return
	}
	for _, cb := range cbs {
		if ctx.Err() != nil {
			return
		}
		cb(ctx, job.Message)
	}
}

// exhaust handles a schedule with no further occurrences: the timer is gone,
// so the store row is disabled too, keeping "enabled" and "backed by a timer"
// in agreement across restarts.
func (s *Scheduler) exhaust(job store.Job) {
	s.log.Info("cron job exhausted", logx.Int64("id", job.ID), logx.String("schedule", job.Schedule))
	if _, err := s.store.DisableJob(context.Background(), job.ID); err != nil {
		s.log.Warn("failed to disable exhausted job", logx.Int64("id", job.ID), logx.Err(err))
	}
}

// drop removes the live-map entry, but only if it still belongs to this run
// (Cancel or a re-arm may have replaced it already).
func (s *Scheduler) drop(id int64, self *timer) {
	s.mu.Lock()
	if s.timers[id] == self {
		delete(s.timers, id)
	}
	s.mu.Unlock()
}
