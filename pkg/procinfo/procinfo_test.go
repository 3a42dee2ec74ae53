package procinfo

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolverCachesLookups(t *testing.T) {
	calls := 0
	r := NewWithLookup(func(pid int32) (string, error) {
		calls++
		return "notepad.exe", nil
	})

	for i := 0; i < 3; i++ {
		name, err := r.Name(42)
		require.NoError(t, err)
		require.Equal(t, "notepad.exe", name)
	}
	require.Equal(t, 1, calls)

	r.Forget(42)
	_, err := r.Name(42)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestResolverDoesNotCacheFailures(t *testing.T) {
	calls := 0
	r := NewWithLookup(func(pid int32) (string, error) {
		calls++
		return "", errors.New("gone")
	})
	_, err := r.Name(7)
	require.Error(t, err)
	_, err = r.Name(7)
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestResolverRejectsInvalidPid(t *testing.T) {
	r := NewWithLookup(func(int32) (string, error) {
		t.Fatal("lookup must not be called")
		return "", nil
	})
	_, err := r.Name(0)
	require.ErrorIs(t, err, ErrUnknownProcess)
}

func TestSystemLookupFindsSelf(t *testing.T) {
	name, err := New().Name(int32(os.Getpid()))
	if err != nil {
		t.Skipf("process table unavailable: %v", err)
	}
	require.NotEmpty(t, name)
}
