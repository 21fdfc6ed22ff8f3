package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebk/relay-bot/internal/logger"
)

func TestScheduleInterval_RejectsNonPositive(t *testing.T) {
	s := New(logger.Discard())

	_, err := s.ScheduleInterval("sweep", 0, func() {})
	assert.Error(t, err)
}

func TestRun_ExecutesJobUntilCancelled(t *testing.T) {
	s := New(logger.Discard())

	var runs atomic.Int32
	_, err := s.ScheduleInterval("sweep", 500*time.Millisecond, func() { runs.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduledPanicIsRecovered(t *testing.T) {
	s := New(logger.Discard())

	var runs atomic.Int32
	_, err := s.ScheduleInterval("boom", time.Second, func() {
		runs.Add(1)
		panic("boom")
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}
