package stacktrace_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

var errTest = errors.New("test error")

func TestWrapNil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, stacktrace.Wrap(nil))
}

func TestWrapCapturesCaller(t *testing.T) {
	t.Parallel()

	err := stacktrace.Wrap(errTest)
	require.ErrorIs(t, err, errTest)

	trace := stacktrace.Extract(err)
	require.NotEmpty(t, trace)
	assert.True(t, strings.HasSuffix(trace[0].Function, "TestWrapCapturesCaller"),
		"first frame should be the caller of Wrap, got %q", trace[0].Function)
}

func TestWrapIdempotent(t *testing.T) {
	t.Parallel()

	once := stacktrace.Wrap(errTest)
	twice := stacktrace.Wrap(once)
	assert.Equal(t, once, twice)
}

func TestWrapJoined(t *testing.T) {
	t.Parallel()

	errOther := errors.New("other")
	err := stacktrace.Wrap(errors.Join(errTest, errOther))
	require.ErrorIs(t, err, errTest)
	require.ErrorIs(t, err, errOther)
}

func TestExtractMissing(t *testing.T) {
	t.Parallel()
	assert.Nil(t, stacktrace.Extract(errTest))
	assert.Nil(t, stacktrace.Marshal(errTest))
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	err := stacktrace.Wrap(errTest)
	out, ok := stacktrace.Marshal(err).([]map[string]string)
	require.True(t, ok)
	require.NotEmpty(t, out)
	assert.Contains(t, out[0], "source")
	assert.Contains(t, out[0], "line")
	assert.Contains(t, out[0], "func")
}

func TestDisabled(t *testing.T) { //nolint:paralleltest // mutates package state
	stacktrace.Disabled.Store(true)
	defer stacktrace.Disabled.Store(false)

	err := stacktrace.Wrap(errTest)
	assert.Nil(t, stacktrace.Extract(err))
}
