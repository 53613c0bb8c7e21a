package calm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-go-sched/calm"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/errclass"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

var errTest = errors.New("test error")

func TestUnpanicNoError(t *testing.T) {
	t.Parallel()

	err := calm.Unpanic(func() error { return nil })
	assert.NoError(t, err)
}

func TestUnpanicError(t *testing.T) {
	t.Parallel()

	err := calm.Unpanic(func() error { return errTest })
	assert.ErrorIs(t, err, errTest)
	assert.Equal(t, errclass.Unknown, errclass.GetClass(err))
}

func TestUnpanicPanic(t *testing.T) {
	t.Parallel()

	err := calm.Unpanic(func() error { panic("something broke") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something broke")
	assert.Equal(t, errclass.Panic, errclass.GetClass(err))
	assert.NotEmpty(t, stacktrace.Extract(err))
}

func TestUnpanicPanicWithError(t *testing.T) {
	t.Parallel()

	err := calm.Unpanic(func() error { panic(errTest) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), errTest.Error())
	assert.Equal(t, errclass.Panic, errclass.GetClass(err))
}
