package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunOnceExecutesAllJobs(t *testing.T) {
	cleaner := NewCleaner()

	var first, second bool
	cleaner.Register(Job{Name: "first", Run: func(ctx context.Context) (int64, error) {
		first = true
		return 3, nil
	}})
	cleaner.Register(Job{Name: "second", Run: func(ctx context.Context) (int64, error) {
		second = true
		return 0, nil
	}})

	require.NoError(t, cleaner.RunOnce(context.Background()))
	require.True(t, first)
	require.True(t, second)
}

func TestRunOnceAggregatesFailuresWithoutSkippingSiblings(t *testing.T) {
	cleaner := NewCleaner()

	boom := errors.New("boom")
	var ran bool
	cleaner.Register(Job{Name: "failing", Run: func(ctx context.Context) (int64, error) {
		return 0, boom
	}})
	cleaner.Register(Job{Name: "surviving", Run: func(ctx context.Context) (int64, error) {
		ran = true
		return 1, nil
	}})

	err := cleaner.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	require.True(t, ran)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	cleaner := NewCleaner(WithSchedule("not a schedule"))
	require.Error(t, cleaner.Start())
}

func TestStartAndStopAreIdempotentEnough(t *testing.T) {
	cleaner := NewCleaner(WithSchedule("@daily"))
	require.NoError(t, cleaner.Start())
	require.NoError(t, cleaner.Start())
	cleaner.Stop()
	cleaner.Stop()
}
