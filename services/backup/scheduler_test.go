package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	// Wednesday June 10th
	return time.Date(2026, 6, 10, hour, minute, 0, 0, time.UTC)
}

func TestShouldRunDailyWindow(t *testing.T) {
	s := DefaultSchedule() // daily at 03:00

	require.True(t, shouldRun(s, at(3, 0)))
	require.True(t, shouldRun(s, at(3, 1)))
	require.True(t, shouldRun(s, at(3, 2)))

	// outside the tolerance window
	require.False(t, shouldRun(s, at(3, 3)))
	require.False(t, shouldRun(s, at(2, 59)))
	require.False(t, shouldRun(s, at(4, 0)))

	// ticks up to two minutes early fire too
	s.Time = "03:05"
	require.True(t, shouldRun(s, at(3, 3)))
	require.True(t, shouldRun(s, at(3, 4)))
	require.False(t, shouldRun(s, at(3, 2)))
}

func TestShouldRunOncePerDay(t *testing.T) {
	s := DefaultSchedule()
	now := at(3, 1)

	require.True(t, shouldRun(s, now))

	s.LastRun = now.Format("2006-01-02")
	require.False(t, shouldRun(s, now))

	// the next day it fires again
	require.True(t, shouldRun(s, now.AddDate(0, 0, 1)))
}

func TestShouldRunDisabled(t *testing.T) {
	s := DefaultSchedule()
	s.Enabled = false
	require.False(t, shouldRun(s, at(3, 0)))
}

func TestShouldRunWeekly(t *testing.T) {
	s := DefaultSchedule()
	s.Frequency = FrequencyWeekly
	s.DayOfWeek = int(time.Wednesday)

	require.True(t, shouldRun(s, at(3, 0)))

	s.DayOfWeek = int(time.Sunday)
	require.False(t, shouldRun(s, at(3, 0)))
}

func TestShouldRunMonthly(t *testing.T) {
	s := DefaultSchedule()
	s.Frequency = FrequencyMonthly
	s.DayOfMonth = 10

	require.True(t, shouldRun(s, at(3, 0)))

	s.DayOfMonth = 1
	require.False(t, shouldRun(s, at(3, 0)))
}

func TestShouldRunBadTime(t *testing.T) {
	s := DefaultSchedule()
	s.Time = "not-a-time"
	require.False(t, shouldRun(s, at(3, 0)))
}

func TestStoreDefaultsAndRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	// first access writes the default schedule
	s, err := store.LoadSchedule("12345678000190")
	require.NoError(t, err)
	require.True(t, s.Enabled)
	require.Equal(t, FrequencyDaily, s.Frequency)
	require.Equal(t, "03:00", s.Time)
	require.Equal(t, 7, s.RetentionDays)

	_, err = os.Stat(filepath.Join(store.TenantDir("12345678000190"), "schedule.json"))
	require.NoError(t, err)

	s.Frequency = FrequencyWeekly
	s.LastRun = "2026-06-10"
	require.NoError(t, store.SaveSchedule("12345678000190", s))

	loaded, err := store.LoadSchedule("12345678000190")
	require.NoError(t, err)
	require.Equal(t, FrequencyWeekly, loaded.Frequency)
	require.Equal(t, "2026-06-10", loaded.LastRun)
}

func TestCleanupOldRemovesOnlyStaleDumps(t *testing.T) {
	store := NewStore(t.TempDir())
	sched := Scheduler{store: store}

	dir := store.TenantDir("123")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	now := time.Now()
	stale := filepath.Join(dir, "cliente_123_old.sql")
	fresh := filepath.Join(dir, "cliente_123_new.sql")
	other := filepath.Join(dir, "schedule.json")

	for _, f := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	}
	require.NoError(t, os.Chtimes(stale, now.AddDate(0, 0, -10), now.AddDate(0, 0, -10)))

	sched.cleanupOld("123", 7, now)

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(fresh)
	require.NoError(t, err)

	// non-dump files are never touched, however old
	require.NoError(t, os.Chtimes(other, now.AddDate(0, 0, -30), now.AddDate(0, 0, -30)))
	sched.cleanupOld("123", 7, now)
	_, err = os.Stat(other)
	require.NoError(t, err)
}

func TestCleanupDisabledRetention(t *testing.T) {
	store := NewStore(t.TempDir())
	sched := Scheduler{store: store}

	dir := store.TenantDir("123")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	old := filepath.Join(dir, "cliente_123_old.sql")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.AddDate(0, -6, 0), now.AddDate(0, -6, 0)))

	sched.cleanupOld("123", 0, now)

	_, err := os.Stat(old)
	require.NoError(t, err)
}
