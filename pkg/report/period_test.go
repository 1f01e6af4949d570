package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePeriod_Daily(t *testing.T) {
	now := time.Date(2026, 7, 31, 14, 30, 0, 0, time.UTC)
	p, err := ComputePeriod(PeriodDaily, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, 7, 30, 23, 59, 59, 0, time.UTC), p.End)
	assert.Equal(t, PeriodTagPointInTime, p.Type)
}

func TestComputePeriod_Monthly(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	p, err := ComputePeriod(PeriodMonthly, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC), p.End)
}

func TestComputePeriod_Quarterly(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) // Q3
	p, err := ComputePeriod(PeriodQuarterly, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, 6, 30, 23, 59, 59, 0, time.UTC), p.End)
}

func TestComputePeriod_Yearly(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	p, err := ComputePeriod(PeriodYearly, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), p.End)
}

func TestComputePeriod_UnknownType(t *testing.T) {
	_, err := ComputePeriod("fortnightly", time.Now())
	assert.ErrorIs(t, err, ErrUnknownPeriodType)
}
