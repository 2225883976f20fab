package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string { return j.name }
func (j *countingJob) Run() error   { j.runs++; return j.err }

// blockingJob runs until release is closed.
type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }
func (j *blockingJob) Run() error {
	close(j.started)
	<-j.release
	return nil
}

func TestScheduler_Registry(t *testing.T) {
	s := New(zerolog.Nop())
	clock := time.Date(2024, 6, 14, 2, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	nightly := &countingJob{name: "nightly"}
	manual := &countingJob{name: "manual", err: errors.New("disk full")}

	require.NoError(t, s.AddJob("0 30 22 * * MON-FRI", nightly))
	require.NoError(t, s.Register(manual))
	assert.Error(t, s.Register(&countingJob{name: "nightly"}), "duplicate name")
	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "broken"}))

	s.Start()
	defer s.Stop()

	assert.NoError(t, s.RunNow("nightly"))
	assert.EqualError(t, s.RunNow("manual"), "disk full")
	assert.ErrorIs(t, s.RunNow("broken"), ErrJobNotFound, "a rejected schedule leaves nothing registered")
	assert.Equal(t, 1, nightly.runs)
	assert.Equal(t, 1, manual.runs)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "manual", jobs[0].Name)
	assert.Empty(t, jobs[0].Schedule)
	assert.Equal(t, 1, jobs[0].Failures)
	assert.Equal(t, "disk full", jobs[0].LastError)

	assert.Equal(t, "nightly", jobs[1].Name)
	assert.Equal(t, "0 30 22 * * MON-FRI", jobs[1].Schedule)
	assert.Equal(t, 1, jobs[1].Runs)
	assert.Zero(t, jobs[1].Failures)
	require.NotNil(t, jobs[1].LastRun)
	assert.Equal(t, clock, *jobs[1].LastRun)
}

func TestScheduler_RejectsOverlappingRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, s.Register(job))

	done := make(chan error, 1)
	go func() { done <- s.RunNow("blocking") }()
	<-job.started

	assert.ErrorIs(t, s.RunNow("blocking"), ErrJobRunning)
	assert.True(t, s.Jobs()[0].Running)

	close(job.release)
	require.NoError(t, <-done)
	assert.False(t, s.Jobs()[0].Running)
	assert.Equal(t, 1, s.Jobs()[0].Runs)
}
