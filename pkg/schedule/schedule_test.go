package schedule_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/schedule"
)

func TestDailyAt(t *testing.T) {
	t.Parallel()

	s := schedule.DailyAt(3, 30)

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			name: "later today",
			from: time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 15, 3, 30, 0, 0, time.UTC),
		},
		{
			name: "exactly at slot moves to tomorrow",
			from: time.Date(2026, 3, 15, 3, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 16, 3, 30, 0, 0, time.UTC),
		},
		{
			name: "month boundary",
			from: time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 4, 1, 3, 30, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.want.Equal(s.Next(tt.from)), "got %s", s.Next(tt.from))
		})
	}

	assert.Equal(t, "daily at 03:30 UTC", s.String())
}

func TestEvery(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(time.Hour), schedule.Every(time.Hour).Next(from))
}

func TestParseDailyAt(t *testing.T) {
	t.Parallel()

	s, err := schedule.ParseDailyAt("06:05")
	require.NoError(t, err)
	assert.Equal(t, "daily at 06:05 UTC", s.String())

	for _, bad := range []string{"", "6", "24:00", "12:60", "ab:cd"} {
		_, err := schedule.ParseDailyAt(bad)
		assert.ErrorIs(t, err, schedule.ErrInvalidSchedule, bad)
	}
}

func TestRunner(t *testing.T) {
	t.Parallel()

	t.Run("runs jobs until cancelled", func(t *testing.T) {
		t.Parallel()

		var runs, failing atomic.Int32
		r := schedule.NewRunner(schedule.WithRunOnStart())
		require.NoError(t, r.Add("tick", schedule.Every(5*time.Millisecond), func(context.Context) error {
			runs.Add(1)
			return nil
		}))
		require.NoError(t, r.Add("broken", schedule.Every(5*time.Millisecond), func(context.Context) error {
			if failing.Add(1) == 1 {
				panic("first run panics")
			}
			return errors.New("still broken")
		}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		assert.Eventually(t, func() bool { return runs.Load() >= 3 && failing.Load() >= 3 }, time.Second, 5*time.Millisecond)
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("duplicate name", func(t *testing.T) {
		t.Parallel()

		r := schedule.NewRunner()
		noop := func(context.Context) error { return nil }
		require.NoError(t, r.Add("a", schedule.Every(time.Hour), noop))
		assert.ErrorIs(t, r.Add("a", schedule.Every(time.Hour), noop), schedule.ErrJobAlreadyRegistered)
	})

	t.Run("no jobs", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, schedule.NewRunner().Run(context.Background()), schedule.ErrNoJobs)
	})
}
