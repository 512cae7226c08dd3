package systems

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rc/engine/core"
)

func TestJobSystem(t *testing.T) {
	js, err := NewJobSystem(3, 4)
	require.NoError(t, err)

	var (
		ran      atomic.Int32
		complete atomic.Int32
		mu       sync.Mutex
		failures []error
	)
	boom := errors.New("boom")
	for i := 0; i < 20; i++ {
		fail := i%5 == 0
		require.NoError(t, js.Submit(JobTask{
			Run: func() error {
				ran.Add(1)
				if fail {
					return boom
				}
				return nil
			},
			OnComplete: func() { complete.Add(1) },
			OnFailure: func(err error) {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			},
		}))
	}
	// a task without callbacks
	require.NoError(t, js.Submit(JobTask{Run: func() error { return boom }}))

	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(21), ran.Load())
	assert.Equal(t, int32(16), complete.Load())
	assert.Len(t, failures, 4)
	assert.ErrorIs(t, failures[0], boom)

	assert.ErrorIs(t, js.Submit(JobTask{Run: func() error { return nil }}), ErrJobSystemClosed)
	assert.NoError(t, js.Shutdown())
}

func TestNewJobSystemErrors(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobFailureLogsErrorVerbatim(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })

	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	require.NoError(t, js.Submit(JobTask{Run: func() error {
		return errors.New("load textures/100%d.png failed")
	}}))
	require.NoError(t, js.Shutdown())

	assert.Contains(t, buf.String(), "load textures/100%d.png failed")
}
