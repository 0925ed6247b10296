package artifacts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krancour/secureimage/internal/artifacts"
	"github.com/krancour/secureimage/internal/testsupport"
	"github.com/stretchr/testify/require"
)

func TestPrunerPrune(t *testing.T) {
	now := time.Now()
	testCases := []struct {
		name       string
		setup      func() *testsupport.ArtifactStore
		assertions func(*testing.T, *testsupport.ArtifactStore, []string, error)
	}{
		{
			name: "nothing to prune",
			setup: func() *testsupport.ArtifactStore {
				store := testsupport.NewArtifactStore()
				store.Seed("a/app.zip", []byte("a"), now.Add(-time.Hour))
				return store
			},
			assertions: func(
				t *testing.T,
				store *testsupport.ArtifactStore,
				removed []string,
				err error,
			) {
				require.NoError(t, err)
				require.Empty(t, removed)
				_, ok := store.Object("a/app.zip")
				require.True(t, ok)
			},
		},
		{
			name: "expired objects removed",
			setup: func() *testsupport.ArtifactStore {
				store := testsupport.NewArtifactStore()
				store.Seed("a/app.zip", []byte("a"), now.Add(-time.Hour))
				store.Seed("b/app.zip", []byte("b"), now.Add(-2*24*time.Hour))
				store.Seed("c/app.zip", []byte("c"), now.Add(-24*time.Hour))
				return store
			},
			assertions: func(
				t *testing.T,
				store *testsupport.ArtifactStore,
				removed []string,
				err error,
			) {
				require.NoError(t, err)
				require.Equal(t, []string{"b/app.zip", "c/app.zip"}, removed)
				_, ok := store.Object("a/app.zip")
				require.True(t, ok)
				_, ok = store.Object("b/app.zip")
				require.False(t, ok)
			},
		},
		{
			name: "remove failure does not stop the sweep",
			setup: func() *testsupport.ArtifactStore {
				store := testsupport.NewArtifactStore()
				store.Seed("b/app.zip", []byte("b"), now.Add(-2*24*time.Hour))
				store.Seed("c/app.zip", []byte("c"), now.Add(-2*24*time.Hour))
				store.RemoveErrs = map[string]error{
					"b/app.zip": errors.New("access denied"),
				}
				return store
			},
			assertions: func(
				t *testing.T,
				store *testsupport.ArtifactStore,
				removed []string,
				err error,
			) {
				require.Error(t, err)
				require.Contains(t, err.Error(), "access denied")
				require.Equal(t, []string{"c/app.zip"}, removed)
				_, ok := store.Object("b/app.zip")
				require.True(t, ok)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			store := testCase.setup()
			removed, err := artifacts.NewPruner(store, 1).Prune(
				context.Background(),
			)
			testCase.assertions(t, store, removed, err)
		})
	}
}

func TestPrunerRunDisabled(t *testing.T) {
	store := testsupport.NewArtifactStore()
	store.Seed("b/app.zip", []byte("b"), time.Now().Add(-48*time.Hour))
	// Returns immediately without pruning
	artifacts.NewPruner(store, 1).Run(context.Background(), 0)
	_, ok := store.Object("b/app.zip")
	require.True(t, ok)
}

func TestPrunerRunUntilCanceled(t *testing.T) {
	store := testsupport.NewArtifactStore()
	store.Seed("b/app.zip", []byte("b"), time.Now().Add(-48*time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		artifacts.NewPruner(store, 1).Run(ctx, time.Hour)
		close(done)
	}()
	require.Eventually(
		t,
		func() bool {
			_, ok := store.Object("b/app.zip")
			return !ok
		},
		time.Second,
		10*time.Millisecond,
	)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "pruner did not stop when its context was canceled")
	}
}
