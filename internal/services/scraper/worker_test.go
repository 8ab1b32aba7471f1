package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
	"github.com/NickHafner/scraper/internal/queue"
	"github.com/NickHafner/scraper/internal/storage/memory"
)

type fakePage struct {
	links []string
	next  string
}

type fakeEvaluator struct {
	pages   map[string]fakePage
	listErr error
}

func (f *fakeEvaluator) ListArticleLinks(ctx context.Context, pageURL string, recipe *models.Recipe, page int) ([]string, string, error) {
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	p := f.pages[pageURL]
	return p.links, p.next, nil
}

func (f *fakeEvaluator) ExtractArticle(ctx context.Context, url string, recipe *models.Recipe) (*interfaces.ExtractedArticle, error) {
	return nil, models.NewExtractionError(errors.New("not used"))
}

type fakeQueue struct {
	mu       sync.Mutex
	messages [][]byte
}

func (q *fakeQueue) Enqueue(ctx context.Context, body []byte, opts *interfaces.EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, body)
	return fmt.Sprintf("msg-%d", len(q.messages)), nil
}

func (q *fakeQueue) Cancel(ctx context.Context, messageID string) error { return nil }
func (q *fakeQueue) Depth(ctx context.Context) (int, error)             { return len(q.messages), nil }
func (q *fakeQueue) Stats(ctx context.Context) (*interfaces.QueueStats, error) {
	return &interfaces.QueueStats{}, nil
}
func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) enqueuedURLs(t *testing.T) []string {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	urls := make([]string, 0, len(q.messages))
	for _, body := range q.messages {
		payload, err := models.ArticlePayloadFromJSON(body)
		if err != nil {
			t.Fatalf("Bad article payload: %v", err)
		}
		urls = append(urls, payload.URL)
	}
	return urls
}

type scrapeFixture struct {
	worker *Worker
	store  *memory.Manager
	queue  *fakeQueue
	source *models.Source
	job    *models.Job
}

func newScrapeFixture(t *testing.T, eval interfaces.RecipeEvaluator) *scrapeFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewManager()
	q := &fakeQueue{}

	source := &models.Source{
		ID:     "src_1",
		Name:   "Example",
		URL:    "https://example.com/news",
		Status: models.SourceStatusActive,
	}
	if err := store.SourceStorage().SaveSource(ctx, source); err != nil {
		t.Fatalf("SaveSource failed: %v", err)
	}
	job, err := store.JobStorage().CreateJob(ctx, source.ID)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	return &scrapeFixture{
		worker: NewWorker(store, eval, q, 10, 3, common.GetLogger()),
		store:  store,
		queue:  q,
		source: source,
		job:    job,
	}
}

func (f *scrapeFixture) delivery(t *testing.T, recipe *models.Recipe) *queue.Delivery {
	t.Helper()
	payload := &models.ScrapePayload{
		JobID:    f.job.ID,
		SourceID: f.source.ID,
		Recipe:   recipe,
	}
	body, err := payload.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	return &queue.Delivery{ID: "scrape-1", Body: body, Attempt: 1}
}

func TestWorker_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("Fans out one article per discovered link", func(t *testing.T) {
		eval := &fakeEvaluator{pages: map[string]fakePage{
			"https://example.com/news": {links: []string{
				"https://example.com/articles/1",
				"https://example.com/articles/2",
			}},
		}}
		f := newScrapeFixture(t, eval)

		if err := f.worker.Handle(ctx, f.delivery(t, &models.Recipe{Name: "r"})); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}

		urls := f.queue.enqueuedURLs(t)
		if len(urls) != 2 {
			t.Fatalf("Expected 2 article messages, got %d", len(urls))
		}

		job, _ := f.store.JobStorage().GetJob(ctx, f.job.ID)
		if job.Status != models.JobStatusCompleted {
			t.Errorf("Expected completed, got %s", job.Status)
		}
		if job.ArticlesFound != 2 {
			t.Errorf("Expected ArticlesFound 2, got %d", job.ArticlesFound)
		}
		if job.StartedAt.IsZero() || job.CompletedAt.IsZero() {
			t.Error("Lifecycle timestamps not recorded")
		}
	})

	t.Run("Exclude filter drops matching links", func(t *testing.T) {
		eval := &fakeEvaluator{pages: map[string]fakePage{
			"https://example.com/news": {links: []string{
				"https://example.com/articles/1",
				"https://example.com/files/report.pdf",
			}},
		}}
		f := newScrapeFixture(t, eval)

		recipe := &models.Recipe{Name: "r", Filters: models.Filters{Exclude: []string{"*.pdf"}}}
		if err := f.worker.Handle(ctx, f.delivery(t, recipe)); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}

		urls := f.queue.enqueuedURLs(t)
		if len(urls) != 1 || urls[0] != "https://example.com/articles/1" {
			t.Errorf("Filter not applied, enqueued: %v", urls)
		}
	})

	t.Run("Pagination stops at the recipe bound", func(t *testing.T) {
		pages := map[string]fakePage{
			"https://example.com/news": {links: []string{"https://example.com/articles/p1"}},
		}
		// Endless url-pattern pages, each with one fresh link
		for i := 2; i <= 50; i++ {
			pages[fmt.Sprintf("https://example.com/news?page=%d", i)] = fakePage{
				links: []string{fmt.Sprintf("https://example.com/articles/p%d", i)},
			}
		}
		f := newScrapeFixture(t, &fakeEvaluator{pages: pages})

		recipe := &models.Recipe{
			Name: "r",
			Pagination: models.Pagination{
				Kind:       models.PaginationURL,
				URLPattern: "https://example.com/news?page={page}",
				MaxPages:   3,
			},
		}
		if err := f.worker.Handle(ctx, f.delivery(t, recipe)); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}

		if got := len(f.queue.enqueuedURLs(t)); got != 3 {
			t.Errorf("Expected 3 articles across 3 pages, got %d", got)
		}
	})

	t.Run("Duplicate links within a run enqueue once", func(t *testing.T) {
		eval := &fakeEvaluator{pages: map[string]fakePage{
			"https://example.com/news": {
				links: []string{"https://example.com/articles/1", "https://example.com/articles/1"},
				next:  "https://example.com/news/2",
			},
			"https://example.com/news/2": {
				links: []string{"https://example.com/articles/1", "https://example.com/articles/2"},
			},
		}}
		f := newScrapeFixture(t, eval)

		recipe := &models.Recipe{
			Name:       "r",
			Pagination: models.Pagination{Kind: models.PaginationClick, Selector: "a.next"},
		}
		if err := f.worker.Handle(ctx, f.delivery(t, recipe)); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}

		urls := f.queue.enqueuedURLs(t)
		if len(urls) != 2 {
			t.Errorf("Expected 2 distinct articles, got %v", urls)
		}
	})

	t.Run("Empty listing completes with zero articles", func(t *testing.T) {
		f := newScrapeFixture(t, &fakeEvaluator{pages: map[string]fakePage{}})

		if err := f.worker.Handle(ctx, f.delivery(t, &models.Recipe{Name: "r"})); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}

		job, _ := f.store.JobStorage().GetJob(ctx, f.job.ID)
		if job.Status != models.JobStatusCompleted || job.ArticlesFound != 0 {
			t.Errorf("Expected completed with 0 found, got %s/%d", job.Status, job.ArticlesFound)
		}
	})

	t.Run("Cancelled before pickup does nothing", func(t *testing.T) {
		f := newScrapeFixture(t, &fakeEvaluator{pages: map[string]fakePage{
			"https://example.com/news": {links: []string{"https://example.com/articles/1"}},
		}})
		if _, err := f.store.JobStorage().Transition(ctx, f.job.ID, models.JobStatusCancelled, nil); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}

		if err := f.worker.Handle(ctx, f.delivery(t, &models.Recipe{Name: "r"})); err != nil {
			t.Fatalf("Handle should skip silently: %v", err)
		}
		if len(f.queue.enqueuedURLs(t)) != 0 {
			t.Error("Cancelled run still fanned out articles")
		}
		job, _ := f.store.JobStorage().GetJob(ctx, f.job.ID)
		if job.Status != models.JobStatusCancelled {
			t.Errorf("Cancelled run changed status to %s", job.Status)
		}
	})

	t.Run("Listing failure propagates for retry", func(t *testing.T) {
		f := newScrapeFixture(t, &fakeEvaluator{
			listErr: models.NewTransientFetchError(errors.New("connection reset")),
		})

		err := f.worker.Handle(ctx, f.delivery(t, &models.Recipe{Name: "r"}))
		if err == nil {
			t.Fatal("Expected fetch failure to propagate")
		}
		if !models.IsRetryable(err) {
			t.Error("Transient fetch failures must stay retryable")
		}
	})

	t.Run("Successful run resets the failure counter", func(t *testing.T) {
		f := newScrapeFixture(t, &fakeEvaluator{pages: map[string]fakePage{}})
		if _, err := f.store.SourceStorage().RecordJobOutcome(ctx, f.source.ID, true); err != nil {
			t.Fatalf("RecordJobOutcome failed: %v", err)
		}

		if err := f.worker.Handle(ctx, f.delivery(t, &models.Recipe{Name: "r"})); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}

		source, _ := f.store.SourceStorage().GetSource(ctx, f.source.ID)
		if source.ConsecutiveFailures != 0 {
			t.Errorf("Failure counter not reset: %d", source.ConsecutiveFailures)
		}
	})
}

func TestWorker_OnTerminal(t *testing.T) {
	ctx := context.Background()

	t.Run("Marks the run failed", func(t *testing.T) {
		f := newScrapeFixture(t, &fakeEvaluator{})

		f.worker.OnTerminal(ctx, f.delivery(t, nil), errors.New("attempts exhausted"))

		job, _ := f.store.JobStorage().GetJob(ctx, f.job.ID)
		if job.Status != models.JobStatusFailed {
			t.Errorf("Expected failed, got %s", job.Status)
		}
		if job.Error == "" {
			t.Error("Failure message not recorded")
		}
		source, _ := f.store.SourceStorage().GetSource(ctx, f.source.ID)
		if source.ConsecutiveFailures != 1 {
			t.Errorf("Expected 1 consecutive failure, got %d", source.ConsecutiveFailures)
		}
	})

	t.Run("Escalates the source after repeated failures", func(t *testing.T) {
		f := newScrapeFixture(t, &fakeEvaluator{})

		for i := 0; i < 3; i++ {
			f.worker.OnTerminal(ctx, f.delivery(t, nil), errors.New("attempts exhausted"))

			// Next round gets a fresh job, as the scheduler would create
			job, err := f.store.JobStorage().CreateJob(ctx, f.source.ID)
			if err != nil {
				t.Fatalf("CreateJob failed: %v", err)
			}
			f.job = job
		}

		source, _ := f.store.SourceStorage().GetSource(ctx, f.source.ID)
		if source.Status != models.SourceStatusError {
			t.Errorf("Expected source in error status, got %s", source.Status)
		}
	})

	t.Run("Already terminal run is left alone", func(t *testing.T) {
		f := newScrapeFixture(t, &fakeEvaluator{})
		if _, err := f.store.JobStorage().Transition(ctx, f.job.ID, models.JobStatusCancelled, nil); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}

		f.worker.OnTerminal(ctx, f.delivery(t, nil), errors.New("late failure"))

		job, _ := f.store.JobStorage().GetJob(ctx, f.job.ID)
		if job.Status != models.JobStatusCancelled {
			t.Errorf("Terminal status overwritten: %s", job.Status)
		}
	})
}
