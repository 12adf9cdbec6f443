package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webharvest/imgcrawler/internal/crawler"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "imgcrawler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.BeginSession(ctx, "sess-1", "crawl", "https://x.test/", started))

	res := crawler.Result{
		Downloaded: []crawler.DownloadResult{
			{SourceURL: "https://x.test/a.jpg", SavedPath: "/out/a.jpg", ByteSize: 10, ContentType: "image/jpeg", Extension: "jpg"},
		},
		VisitedPages:     []string{"https://x.test/", "https://x.test/p1"},
		AssetURLs:        []string{"https://x.test/a.jpg", "https://x.test/b.png"},
		TotalAssetsFound: 2,
	}
	finished := started.Add(time.Minute)
	require.NoError(t, s.FinishSession(ctx, "sess-1", res, finished))

	sessions, err := s.RecentSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	got := sessions[0]
	require.Equal(t, "sess-1", got.ID)
	require.Equal(t, "crawl", got.Kind)
	require.Equal(t, "https://x.test/", got.Target)
	require.Equal(t, 2, got.PagesVisited)
	require.Equal(t, 2, got.AssetsFound)
	require.Equal(t, 1, got.AssetsSaved)
	require.NotNil(t, got.FinishedAt)
	require.True(t, got.FinishedAt.After(got.StartedAt))
}

func TestRecentSessionsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.BeginSession(ctx, id, "crawl", "https://x.test/", base.Add(time.Duration(i)*time.Hour)))
	}

	sessions, err := s.RecentSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "new", sessions[0].ID)
	require.Equal(t, "mid", sessions[1].ID)
}

func TestRecentSessionsEmpty(t *testing.T) {
	s := openTestStore(t)
	sessions, err := s.RecentSessions(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestBeginSessionDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.BeginSession(ctx, "dup", "crawl", "https://x.test/", now))
	require.Error(t, s.BeginSession(ctx, "dup", "crawl", "https://x.test/", now))
}
