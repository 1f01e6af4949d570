package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is a ScheduledReportRun's lifecycle state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ScheduledReportRun records one execution of a Schedule.
type ScheduledReportRun struct {
	RunID       string
	ScheduleID  string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *Report
	Error       string
}

// Schedule is a recurring report generation job.
type Schedule struct {
	ID         string
	Request    Request
	CronExpr   string
	cron       Cron
	Enabled    bool
	NextRunAt  time.Time
	LastRunAt  *time.Time
	history    []ScheduledReportRun // bounded ring buffer
}

const defaultHistoryCapacity = 50

// defaultRunDeadline mirrors spec.md §5's "per-run deadline derived
// from periodType (default 30 min)".
const defaultRunDeadline = 30 * time.Minute

// Manager maintains a set of schedules and drives due runs. Per
// spec.md §5, a tick's runs do not overlap for the same schedule.
type Manager struct {
	mu        sync.Mutex
	generator *Generator
	schedules map[string]*Schedule
	historyCap int
	now        func() time.Time
}

// NewManager returns a Manager driving generator.
func NewManager(generator *Generator) *Manager {
	return &Manager{
		generator:  generator,
		schedules:  make(map[string]*Schedule),
		historyCap: defaultHistoryCapacity,
		now:        time.Now,
	}
}

// AddSchedule registers a new schedule, computing its first
// NextRunAt from the cron expression.
func (m *Manager) AddSchedule(req Request, cronExpr string, enabled bool) (*Schedule, error) {
	c, err := ParseCron(cronExpr)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := &Schedule{
		ID:        uuid.NewString(),
		Request:   req,
		CronExpr:  cronExpr,
		cron:      c,
		Enabled:   enabled,
		NextRunAt: c.Next(now),
	}
	m.schedules[s.ID] = s
	return s, nil
}

// RemoveSchedule deletes a schedule.
func (m *Manager) RemoveSchedule(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
}

// Get returns a schedule by id.
func (m *Manager) Get(id string) (*Schedule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	return s, ok
}

// List returns every registered schedule.
func (m *Manager) List() []*Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	return out
}

// ProcessDueSchedules runs every enabled schedule whose NextRunAt has
// passed, sequentially, and refreshes each one's NextRunAt.
func (m *Manager) ProcessDueSchedules(ctx context.Context) []ScheduledReportRun {
	now := m.now()

	m.mu.Lock()
	due := make([]*Schedule, 0)
	for _, s := range m.schedules {
		if s.Enabled && !s.NextRunAt.IsZero() && !s.NextRunAt.After(now) {
			due = append(due, s)
		}
	}
	m.mu.Unlock()

	runs := make([]ScheduledReportRun, 0, len(due))
	for _, s := range due {
		runs = append(runs, m.runNow(ctx, s))
	}
	return runs
}

// RunSchedule runs a schedule immediately regardless of NextRunAt;
// always allowed, per spec.md §4.K.
func (m *Manager) RunSchedule(ctx context.Context, id string) (ScheduledReportRun, error) {
	m.mu.Lock()
	s, ok := m.schedules[id]
	m.mu.Unlock()
	if !ok {
		return ScheduledReportRun{}, fmt.Errorf("report: schedule %q not found", id)
	}
	return m.runNow(ctx, s), nil
}

func (m *Manager) runNow(ctx context.Context, s *Schedule) ScheduledReportRun {
	run := ScheduledReportRun{
		RunID:      uuid.NewString(),
		ScheduleID: s.ID,
		Status:     RunRunning,
		StartedAt:  m.now(),
	}

	runCtx, cancel := context.WithTimeout(ctx, defaultRunDeadline)
	defer cancel()

	report, err := m.generator.Generate(runCtx, s.Request)
	completed := m.now()
	run.CompletedAt = &completed

	if err != nil {
		run.Status = RunFailed
		if runCtx.Err() != nil {
			run.Error = "deadline_exceeded"
		} else {
			run.Error = err.Error()
		}
	} else {
		run.Status = RunCompleted
		run.Result = &report
	}

	m.mu.Lock()
	s.LastRunAt = &run.StartedAt
	s.NextRunAt = s.cron.Next(completed)
	s.history = appendBounded(s.history, run, m.historyCap)
	m.mu.Unlock()

	return run
}

// History returns a schedule's recorded runs, oldest first.
func (m *Manager) History(scheduleID string) []ScheduledReportRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[scheduleID]
	if !ok {
		return nil
	}
	out := make([]ScheduledReportRun, len(s.history))
	copy(out, s.history)
	return out
}

func appendBounded(buf []ScheduledReportRun, item ScheduledReportRun, capacity int) []ScheduledReportRun {
	buf = append(buf, item)
	if len(buf) > capacity {
		buf = buf[len(buf)-capacity:]
	}
	return buf
}
