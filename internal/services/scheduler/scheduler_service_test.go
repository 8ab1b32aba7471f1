package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
	"github.com/NickHafner/scraper/internal/storage/memory"
)

type fakeQueue struct {
	mu         sync.Mutex
	messages   [][]byte
	enqueueErr error
}

func (q *fakeQueue) Enqueue(ctx context.Context, body []byte, opts *interfaces.EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	q.messages = append(q.messages, body)
	return fmt.Sprintf("msg-%d", len(q.messages)), nil
}

func (q *fakeQueue) Cancel(ctx context.Context, messageID string) error { return nil }
func (q *fakeQueue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages), nil
}
func (q *fakeQueue) Stats(ctx context.Context) (*interfaces.QueueStats, error) {
	return &interfaces.QueueStats{}, nil
}
func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) payloads(t *testing.T) []*models.ScrapePayload {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.ScrapePayload, 0, len(q.messages))
	for _, body := range q.messages {
		p, err := models.ScrapePayloadFromJSON(body)
		if err != nil {
			t.Fatalf("Bad scrape payload: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func saveSource(t *testing.T, store *memory.Manager, source *models.Source) {
	t.Helper()
	if err := store.SourceStorage().SaveSource(context.Background(), source); err != nil {
		t.Fatalf("SaveSource failed: %v", err)
	}
}

func TestService_RunTick(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	overdue := now.Add(-2 * time.Hour)

	t.Run("Due active source gets one pending job", func(t *testing.T) {
		store := memory.NewManager()
		q := &fakeQueue{}
		saveSource(t, store, &models.Source{
			ID: "src_1", Name: "News", URL: "https://example.com/news",
			Schedule: "0 * * * *", LastRun: overdue, Status: models.SourceStatusActive,
		})

		svc := NewService(store, q, time.Minute, 10, common.GetLogger())
		svc.RunTick(ctx, now)

		payloads := q.payloads(t)
		if len(payloads) != 1 {
			t.Fatalf("Expected 1 scrape message, got %d", len(payloads))
		}
		if payloads[0].SourceID != "src_1" {
			t.Errorf("Wrong source dispatched: %s", payloads[0].SourceID)
		}

		job, err := store.JobStorage().GetJob(ctx, payloads[0].JobID)
		if err != nil {
			t.Fatalf("Job not in ledger: %v", err)
		}
		if job.Status != models.JobStatusPending {
			t.Errorf("Expected pending job, got %s", job.Status)
		}
		if job.QueueID == "" {
			t.Error("Queue id not recorded on job")
		}

		source, _ := store.SourceStorage().GetSource(ctx, "src_1")
		if !source.LastRun.Equal(now) {
			t.Errorf("LastRun not advanced: %v", source.LastRun)
		}
	})

	t.Run("Paused and error sources are skipped", func(t *testing.T) {
		store := memory.NewManager()
		q := &fakeQueue{}
		saveSource(t, store, &models.Source{
			ID: "src_p", Name: "Paused", URL: "https://example.com/p",
			Schedule: "0 * * * *", LastRun: overdue, Status: models.SourceStatusPaused,
		})
		saveSource(t, store, &models.Source{
			ID: "src_e", Name: "Broken", URL: "https://example.com/e",
			Schedule: "0 * * * *", LastRun: overdue, Status: models.SourceStatusError,
		})

		svc := NewService(store, q, time.Minute, 10, common.GetLogger())
		svc.RunTick(ctx, now)

		if len(q.payloads(t)) != 0 {
			t.Error("Inactive sources were dispatched")
		}
	})

	t.Run("Overlap guard skips sources with a run in flight", func(t *testing.T) {
		store := memory.NewManager()
		q := &fakeQueue{}
		saveSource(t, store, &models.Source{
			ID: "src_1", Name: "News", URL: "https://example.com/news",
			Schedule: "0 * * * *", LastRun: overdue, Status: models.SourceStatusActive,
		})

		svc := NewService(store, q, time.Minute, 10, common.GetLogger())
		svc.RunTick(ctx, now)
		if len(q.payloads(t)) != 1 {
			t.Fatalf("Setup dispatch failed: %d messages", len(q.payloads(t)))
		}

		// The job is still pending, so the next tick must not stack a second run.
		// Reset LastRun so the schedule is due again.
		if err := store.SourceStorage().UpdateLastRun(ctx, "src_1", overdue); err != nil {
			t.Fatalf("UpdateLastRun failed: %v", err)
		}
		svc.RunTick(ctx, now.Add(time.Hour))

		if len(q.payloads(t)) != 1 {
			t.Errorf("Overlap guard failed: %d messages", len(q.payloads(t)))
		}
	})

	t.Run("Enqueue failure is isolated and leaves no orphan job", func(t *testing.T) {
		store := memory.NewManager()
		q := &fakeQueue{}
		saveSource(t, store, &models.Source{
			ID: "src_a", Name: "A", URL: "https://example.com/a",
			Schedule: "0 * * * *", LastRun: overdue, Status: models.SourceStatusActive,
		})
		saveSource(t, store, &models.Source{
			ID: "src_b", Name: "B", URL: "https://example.com/b",
			Schedule: "0 * * * *", LastRun: overdue, Status: models.SourceStatusActive,
		})

		svc := NewService(store, q, time.Minute, 10, common.GetLogger())
		q.enqueueErr = errors.New("queue full")
		svc.RunTick(ctx, now)
		if len(q.payloads(t)) != 0 {
			t.Fatal("Expected no dispatches while queue is failing")
		}

		// Undispatched jobs were cancelled, so the overlap guard must
		// not hold the sources back once the queue recovers
		q.enqueueErr = nil
		svc.RunTick(ctx, now)

		payloads := q.payloads(t)
		if len(payloads) != 2 {
			t.Fatalf("Expected both sources dispatched after recovery, got %d", len(payloads))
		}
		seen := map[string]bool{}
		for _, p := range payloads {
			seen[p.SourceID] = true
		}
		if !seen["src_a"] || !seen["src_b"] {
			t.Errorf("Missing dispatches: %v", seen)
		}
	})

	t.Run("Recipe snapshot rides in the payload", func(t *testing.T) {
		store := memory.NewManager()
		q := &fakeQueue{}
		recipe := &models.Recipe{
			ID: "rcp_1", Name: "news recipe",
			Pagination: models.Pagination{Kind: models.PaginationURL, URLPattern: "https://example.com/news?page={page}", MaxPages: 4},
		}
		if err := store.RecipeStorage().SaveRecipe(ctx, recipe); err != nil {
			t.Fatalf("SaveRecipe failed: %v", err)
		}
		saveSource(t, store, &models.Source{
			ID: "src_1", Name: "News", URL: "https://example.com/news", RecipeID: "rcp_1",
			Schedule: "0 * * * *", LastRun: overdue, Status: models.SourceStatusActive,
		})

		svc := NewService(store, q, time.Minute, 10, common.GetLogger())
		svc.RunTick(ctx, now)

		payloads := q.payloads(t)
		if len(payloads) != 1 {
			t.Fatalf("Expected 1 dispatch, got %d", len(payloads))
		}
		if payloads[0].Recipe == nil || payloads[0].Recipe.ID != "rcp_1" {
			t.Error("Recipe not snapshot into the payload")
		}
		if payloads[0].MaxPages != 4 {
			t.Errorf("Expected recipe page bound 4, got %d", payloads[0].MaxPages)
		}
	})
}

func TestService_StartStop(t *testing.T) {
	store := memory.NewManager()
	svc := NewService(store, &fakeQueue{}, 50*time.Millisecond, 10, common.GetLogger())

	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := svc.Start(); err == nil {
		t.Error("Second Start should fail")
	}

	time.Sleep(120 * time.Millisecond)
	svc.Stop()
	// Stop again is a no-op
	svc.Stop()
}
