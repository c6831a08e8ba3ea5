package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"banksync/internal/domain/requisition"
)

// cycleTimeout bounds one full sync cycle, network calls included.
const cycleTimeout = 10 * time.Minute

// ScheduleTime represents a specific time of day when the scheduler should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// Scheduler runs sync cycles at specific times of day.
type Scheduler struct {
	runner        *CycleRunner
	scheduleTimes []ScheduleTime
	runOnStartup  bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun string
	mu      sync.Mutex
}

// Config holds configuration for the scheduler.
type Config struct {
	ScheduleTimes []string
	RunOnStartup  bool
}

// New creates a scheduler that drives the given runner.
func New(runner *CycleRunner, config Config) (*Scheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(config.ScheduleTimes))
	for _, timeStr := range config.ScheduleTimes {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}

	if len(scheduleTimes) == 0 {
		return nil, fmt.Errorf("at least one schedule time is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	log.Printf("Scheduler initialized with %d schedule times: %v", len(scheduleTimes), config.ScheduleTimes)

	return &Scheduler{
		runner:        runner,
		scheduleTimes: scheduleTimes,
		runOnStartup:  config.RunOnStartup,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	if s.runOnStartup {
		log.Println("Scheduler: Running initial cycle on startup")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runCycle()
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	log.Println("Scheduler started")
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	log.Println("Scheduler loop started, checking every minute")

	for {
		select {
		case <-s.ctx.Done():
			log.Println("Scheduler loop: Context cancelled, shutting down")
			return

		case now := <-ticker.C:
			if s.shouldRun(now) {
				log.Printf("Scheduler: Triggered at %s", now.Format("15:04"))
				s.runCycle()
			}
		}
	}
}

// shouldRun checks if the current time matches any scheduled time. Each
// date-and-minute fires at most once even if ticks arrive twice within
// the same minute.
func (s *Scheduler) shouldRun(now time.Time) bool {
	currentKey := now.Format("2006-01-02 15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == currentKey {
		return false
	}

	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRun = currentKey
			return true
		}
	}

	return false
}

func (s *Scheduler) runCycle() {
	ctx, cancel := context.WithTimeout(s.ctx, cycleTimeout)
	defer cancel()

	err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, requisition.ErrAwaitingAuthorization):
		log.Println("Scheduler: Cycle completed, bank link awaiting authorization")
	case err != nil:
		log.Printf("Scheduler: Cycle finished with error: %v", err)
	default:
		log.Println("Scheduler: Cycle completed")
	}
}

// Shutdown gracefully stops the scheduling loop.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	log.Println("Scheduler: Initiating graceful shutdown...")

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Scheduler: Shutdown complete")
	case <-time.After(timeout):
		log.Println("Scheduler: Timeout waiting for running cycle to stop")
	}
}

// NextScheduledTime returns the next scheduled run time.
func (s *Scheduler) NextScheduledTime() time.Time {
	now := time.Now()

	var next time.Time
	for _, st := range s.scheduleTimes {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next
}
