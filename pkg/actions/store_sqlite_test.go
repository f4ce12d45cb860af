package actions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreProcessedFlags(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := s.IsActionProcessed(ctx, "m1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.MarkActionProcessed(ctx, "m1"))
	// Marking twice is fine.
	require.NoError(t, s.MarkActionProcessed(ctx, "m1"))

	ok, err = s.IsActionProcessed(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.IsActionProcessed(ctx, "m2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteStoreRejectsEmptyIDs(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.IsActionProcessed(ctx, " ")
	require.Error(t, err)
	require.Error(t, s.MarkActionProcessed(ctx, ""))
	require.Error(t, s.SavePendingNavigation(ctx, PendingNavigation{}))
}

func TestSQLiteStorePendingNavigationSlot(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	nav, err := s.TakePendingNavigation(ctx)
	require.NoError(t, err)
	require.Nil(t, nav)

	require.NoError(t, s.SavePendingNavigation(ctx, PendingNavigation{
		URL: "/a", Selector: "#one", OnLoadText: "first",
	}))
	// A newer navigation replaces the slot.
	require.NoError(t, s.SavePendingNavigation(ctx, PendingNavigation{
		URL: "/b", Selector: "#two", OnLoadText: "second",
	}))

	nav, err = s.TakePendingNavigation(ctx)
	require.NoError(t, err)
	require.NotNil(t, nav)
	require.Equal(t, "/b", nav.URL)
	require.Equal(t, "#two", nav.Selector)
	require.Equal(t, "second", nav.OnLoadText)

	nav, err = s.TakePendingNavigation(ctx)
	require.NoError(t, err)
	require.Nil(t, nav)
}
