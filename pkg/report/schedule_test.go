package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ProcessDueSchedulesRunsEligibleOnes(t *testing.T) {
	gen := NewGenerator(GeneratorConfig{})
	mgr := NewManager(gen)

	fixedNow := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return fixedNow }

	req := Request{TenantID: "t1", Organization: "Acme", Framework: FrameworkSOC2Type1, Period: testPeriod(), OutputFormat: OutputJSON}
	sched, err := mgr.AddSchedule(req, "0 9 * * *", true)
	require.NoError(t, err)

	mgr.now = func() time.Time { return fixedNow.Add(25 * time.Hour) }
	runs := mgr.ProcessDueSchedules(context.Background())
	require.Len(t, runs, 1)
	assert.Equal(t, RunCompleted, runs[0].Status)

	refreshed, ok := mgr.Get(sched.ID)
	require.True(t, ok)
	assert.True(t, refreshed.NextRunAt.After(fixedNow.Add(25*time.Hour)))
}

func TestManager_DisabledSchedulesAreSkipped(t *testing.T) {
	gen := NewGenerator(GeneratorConfig{})
	mgr := NewManager(gen)

	req := Request{TenantID: "t1", Organization: "Acme", Framework: FrameworkSOC2Type1, Period: testPeriod(), OutputFormat: OutputJSON}
	_, err := mgr.AddSchedule(req, "* * * * *", false)
	require.NoError(t, err)

	mgr.now = func() time.Time { return time.Now().Add(time.Hour) }
	runs := mgr.ProcessDueSchedules(context.Background())
	assert.Empty(t, runs)
}

func TestManager_RunScheduleAlwaysAllowed(t *testing.T) {
	gen := NewGenerator(GeneratorConfig{})
	mgr := NewManager(gen)

	req := Request{TenantID: "t1", Organization: "Acme", Framework: FrameworkSOC2Type1, Period: testPeriod(), OutputFormat: OutputJSON}
	sched, err := mgr.AddSchedule(req, "0 0 1 1 *", true) // once a year, far from due
	require.NoError(t, err)

	run, err := mgr.RunSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)

	history := mgr.History(sched.ID)
	require.Len(t, history, 1)
}

func TestManager_RunScheduleUnknownID(t *testing.T) {
	mgr := NewManager(NewGenerator(GeneratorConfig{}))
	_, err := mgr.RunSchedule(context.Background(), "missing")
	assert.Error(t, err)
}
