package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a background task run on a cron schedule.
type Job func(ctx context.Context) error

// Scheduler runs background jobs such as the calendar token refresh and
// the daily usage report.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	loc    *time.Location
	names  map[cron.EntryID]string
}

// New creates a scheduler evaluating specs in loc. A nil loc means UTC.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ctx:    ctx,
		cancel: cancel,
		loc:    loc,
		names:  make(map[cron.EntryID]string),
	}
}

// Add registers job under spec. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		log.Printf("⚠️ No schedule for %s, job disabled", name)
		return nil
	}
	id, err := s.cron.AddFunc(spec, func() {
		log.Printf("🕘 Running scheduled job %s", name)
		if err := job(s.ctx); err != nil {
			log.Printf("❌ Scheduled job %s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.names[id] = name
	log.Printf("📅 Scheduled %s: %s", name, spec)
	return nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	if len(s.names) == 0 {
		log.Println("⚠️ No jobs registered, scheduler not started")
		return
	}
	s.cron.Start()
	log.Printf("📅 Scheduler started with %d job(s)", len(s.names))
}

// Stop waits for running jobs and cancels their context.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}

// IsRunning reports whether any job is registered.
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}

// Next returns the next activation of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	for _, e := range s.cron.Entries() {
		if s.names[e.ID] != name {
			continue
		}
		if e.Next.IsZero() {
			// not started yet
			return e.Schedule.Next(time.Now().In(s.loc)), true
		}
		return e.Next, true
	}
	return time.Time{}, false
}
