package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"yesman/middleman/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Ingest(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func testConfig() *config.Config {
	return &config.Config{
		WakeCron:       "0 11 * * *",
		RepeatInterval: time.Hour,
	}
}

func TestScheduler_RunOnStart(t *testing.T) {
	cfg := testConfig()
	cfg.RunOnStart = true
	job := &countingJob{}

	s := NewScheduler(cfg, job)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 10*time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_WakeStartsLoopOnce(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(testConfig(), job)
	ctx := context.Background()

	s.wake(ctx)
	s.wake(ctx)
	s.wake(ctx)

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, time.Second, 10*time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(1), job.runs.Load(), "later wakes do not start extra passes")
}

func TestScheduler_RepeatsAfterInterval(t *testing.T) {
	cfg := testConfig()
	cfg.RepeatInterval = 10 * time.Millisecond
	job := &countingJob{err: errors.New("upstream down")}

	s := NewScheduler(cfg, job)
	s.wake(context.Background())

	assert.Eventually(t, func() bool { return job.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"failed passes do not stop the loop")
	s.Stop()
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &countingJob{}
	s := NewScheduler(testConfig(), job)

	s.wake(ctx)
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ingestion loop did not stop after cancellation")
	}
}

func TestScheduler_InvalidCron(t *testing.T) {
	cfg := testConfig()
	cfg.WakeCron = "not a cron spec"

	err := NewScheduler(cfg, &countingJob{}).Start(context.Background())
	assert.Error(t, err)
}
