package errcontext_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-go-sched/xerrors"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/errcontext"
)

var errTest = errors.New("test error")

func TestAddNil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, errcontext.Add(nil, slog.String("key", "value")))
}

func TestAddGet(t *testing.T) {
	t.Parallel()

	err := errcontext.Add(errTest, slog.String("task", "cleanup"), slog.Int("attempt", 3))
	require.ErrorIs(t, err, errTest)

	ctx := errcontext.Get(err)
	require.NotNil(t, ctx)
	assert.Equal(t, "cleanup", ctx["task"].String())
	assert.Equal(t, int64(3), ctx["attempt"].Int64())
}

func TestAddLastEntryWins(t *testing.T) {
	t.Parallel()

	err := errcontext.Add(errTest, slog.String("task", "first"))
	err = errcontext.Add(err, slog.String("task", "second"))

	ctx := errcontext.Get(err)
	require.NotNil(t, ctx)
	assert.Equal(t, "second", ctx["task"].String())
}

func TestAddJoined(t *testing.T) {
	t.Parallel()

	errOther := errors.New("other")
	err := errcontext.Add(errors.Join(errTest, errOther), slog.String("key", "value"))

	children := xerrors.Unjoin(err)
	require.Len(t, children, 2)
	for _, child := range children {
		ctx := errcontext.Get(child)
		require.NotNil(t, ctx)
		assert.Equal(t, "value", ctx["key"].String())
	}
}

func TestFlattenSorted(t *testing.T) {
	t.Parallel()

	err := errcontext.Add(errTest, slog.String("b", "2"), slog.String("a", "1"), slog.String("c", "3"))
	attrs := errcontext.Get(err).Flatten()
	require.Len(t, attrs, 3)
	assert.Equal(t, "a", attrs[0].Key)
	assert.Equal(t, "b", attrs[1].Key)
	assert.Equal(t, "c", attrs[2].Key)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	assert.Nil(t, errcontext.Get(errTest))
	assert.Nil(t, errcontext.Get(nil))
}
