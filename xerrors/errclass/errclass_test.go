package errclass_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zircuit-labs/zkr-go-sched/xerrors/errclass"
)

var errTest = errors.New("test error")

func TestGetClass(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		expected errclass.Class
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: errclass.Nil,
		},
		{
			name:     "unclassified error",
			err:      errTest,
			expected: errclass.Unknown,
		},
		{
			name:     "transient",
			err:      errclass.WrapAs(errTest, errclass.Transient),
			expected: errclass.Transient,
		},
		{
			name:     "persistent",
			err:      errclass.WrapAs(errTest, errclass.Persistent),
			expected: errclass.Persistent,
		},
		{
			name:     "panic",
			err:      errclass.WrapAs(errTest, errclass.Panic),
			expected: errclass.Panic,
		},
		{
			name: "joined reports highest",
			err: errors.Join(
				errclass.WrapAs(errTest, errclass.Transient),
				errclass.WrapAs(errTest, errclass.Persistent),
			),
			expected: errclass.Persistent,
		},
		{
			name: "joined with unclassified",
			err: errors.Join(
				errTest,
				errclass.WrapAs(errTest, errclass.Transient),
			),
			expected: errclass.Transient,
		},
		{
			name:     "reclassified uses newest",
			err:      errclass.WrapAs(errclass.WrapAs(errTest, errclass.Transient), errclass.Persistent),
			expected: errclass.Persistent,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, errclass.GetClass(tc.err))
		})
	}
}

func TestWrapAsNil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, errclass.WrapAs(nil, errclass.Persistent))
}

func TestClassString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "nil", errclass.Nil.String())
	assert.Equal(t, "unknown", errclass.Unknown.String())
	assert.Equal(t, "transient", errclass.Transient.String())
	assert.Equal(t, "persistent", errclass.Persistent.String())
	assert.Equal(t, "panic", errclass.Panic.String())
}
