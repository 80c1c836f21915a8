package scheduler

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	runs int
	err  error
}

func (j *stubJob) Name() string { return j.name }
func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

func TestAddJobAcceptsSecondsSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	assert.NoError(t, s.AddJob("@every 5s", &stubJob{name: "hedge_cycle"}))
	assert.NoError(t, s.AddJob("0 */5 * * * *", &stubJob{name: "volatility_refresh"}))
	assert.Error(t, s.AddJob("not a schedule", &stubJob{name: "broken"}))
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &stubJob{name: "hedge_cycle"}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	job.err = fmt.Errorf("cycle failed")
	assert.Error(t, s.RunNow(job))
	assert.Equal(t, 2, job.runs)
}

func TestStartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &stubJob{name: "noop"}))

	s.Start()
	s.Stop()
}
