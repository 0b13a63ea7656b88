package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/cache"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/submission"
)

func newTestCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestStatusRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	repo, err := NewStatusRepository(c)
	if err != nil {
		t.Fatalf("NewStatusRepository: %v", err)
	}
	ctx := context.Background()

	update := submission.StatusUpdate{
		SubmissionID: "sub-1",
		SessionID:    "sess-1",
		Phase:        submission.PhaseRunning,
		Done:         2,
		Total:        5,
	}
	if err := repo.Report(ctx, update); err != nil {
		t.Fatalf("Report: %v", err)
	}

	got, found, err := repo.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("status not found after report")
	}
	if got != update {
		t.Fatalf("got %+v, want %+v", got, update)
	}

	// Later snapshots overwrite earlier ones.
	update.Phase = submission.PhaseFinished
	update.Status = submission.StatusComplete
	update.Done = 5
	if err := repo.Report(ctx, update); err != nil {
		t.Fatalf("Report: %v", err)
	}
	got, _, err = repo.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Phase != submission.PhaseFinished || got.Status != submission.StatusComplete {
		t.Fatalf("got %+v", got)
	}
}

func TestStatusExpires(t *testing.T) {
	c, mr := newTestCache(t)
	repo, err := NewStatusRepository(c)
	if err != nil {
		t.Fatalf("NewStatusRepository: %v", err)
	}
	ctx := context.Background()

	if err := repo.Report(ctx, submission.StatusUpdate{SubmissionID: "sub-1", Phase: submission.PhaseRunning}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	mr.FastForward(defaultStatusTTL * 2)

	_, found, err := repo.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("status survived past its TTL")
	}
}

func TestStatusUnknownSubmission(t *testing.T) {
	c, _ := newTestCache(t)
	repo, _ := NewStatusRepository(c)

	_, found, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("found a status that was never reported")
	}
}
