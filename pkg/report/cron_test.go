package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCron_RejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCron("0 9 * * * *")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCron)

	_, err = ParseCron("0 9 * *")
	require.Error(t, err)
}

func TestParseCron_NextDailyAtNine(t *testing.T) {
	c, err := ParseCron("0 9 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next := c.Next(after)
	assert.Equal(t, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), next)
}

func TestParseCron_StepValues(t *testing.T) {
	c, err := ParseCron("*/15 * * * *")
	require.NoError(t, err)

	after := time.Date(2026, 7, 31, 10, 2, 0, 0, time.UTC)
	next := c.Next(after)
	assert.Equal(t, time.Date(2026, 7, 31, 10, 15, 0, 0, time.UTC), next)
}

func TestParseCron_WeekdayList(t *testing.T) {
	c, err := ParseCron("0 0 * * 1,3,5")
	require.NoError(t, err)

	// 2026-07-31 is a Friday.
	after := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	next := c.Next(after)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestParseCron_RangeField(t *testing.T) {
	c, err := ParseCron("0 9-17 * * *")
	require.NoError(t, err)
	assert.True(t, c.hour.has(9))
	assert.True(t, c.hour.has(17))
	assert.False(t, c.hour.has(18))
}
