package server

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge/snapshot"
)

type recordingLoader struct {
	mu    sync.Mutex
	loads [][]knowledge.Item
	err   error
}

func (r *recordingLoader) Load(ctx context.Context, items []knowledge.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, items)
	return r.err
}

func (r *recordingLoader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loads)
}

func TestNewRefresherRejectsBadSpec(t *testing.T) {
	_, err := NewRefresher("not a cron", snapshot.NewFileStore("x"), &recordingLoader{}, quietLogger())
	require.Error(t, err)
}

func TestRefresherNext(t *testing.T) {
	r, err := NewRefresher("@hourly", snapshot.NewFileStore("x"), &recordingLoader{}, quietLogger())
	require.NoError(t, err)
	base := time.Date(2024, 7, 1, 10, 15, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 7, 1, 11, 0, 0, 0, time.UTC), r.Next(base))
}

func TestRefreshLoadsSnapshot(t *testing.T) {
	ctx := context.Background()
	fs := snapshot.NewFileStore(filepath.Join(t.TempDir(), "kb.yaml"))
	loader := &recordingLoader{}
	r, err := NewRefresher("@daily", fs, loader, quietLogger())
	require.NoError(t, err)

	require.NoError(t, r.Refresh(ctx))
	require.Zero(t, loader.count())

	require.NoError(t, fs.Save(ctx, knowledge.SeedItems()))
	require.NoError(t, r.Refresh(ctx))
	require.Equal(t, 1, loader.count())

	loader.err = errors.New("duplicate id")
	require.Error(t, r.Refresh(ctx))
}

func TestRefresherLoopFiresAndStops(t *testing.T) {
	ctx := context.Background()
	fs := snapshot.NewFileStore(filepath.Join(t.TempDir(), "kb.yaml"))
	require.NoError(t, fs.Save(ctx, knowledge.SeedItems()))
	loader := &recordingLoader{}
	r, err := NewRefresher("* * * * * * *", fs, loader, quietLogger())
	require.NoError(t, err)

	r.Start(ctx)
	require.Eventually(t, func() bool { return loader.count() > 0 }, 3*time.Second, 20*time.Millisecond)
	r.Stop()
	r.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	r, err := NewRefresher("@daily", snapshot.NewFileStore("x"), &recordingLoader{}, quietLogger())
	require.NoError(t, err)
	r.Stop()
}
