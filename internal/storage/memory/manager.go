// Package memory provides an in-memory StorageManager with the same
// semantics as the Badger implementation. It backs unit tests and
// ephemeral runs where durability is not wanted.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// Manager implements interfaces.StorageManager over maps
type Manager struct {
	mu                 sync.Mutex
	sources            map[string]*models.Source
	recipes            map[string]*models.Recipe
	jobs               map[string]*models.Job
	articles           map[string]*models.Article
	tags               map[string]*models.Tag
	articleTags        []models.ArticleTag
	collections        map[string]*models.Collection
	collectionArticles []models.CollectionArticle
	blobs              map[string][]byte
}

// NewManager creates an empty in-memory store
func NewManager() *Manager {
	return &Manager{
		sources:     make(map[string]*models.Source),
		recipes:     make(map[string]*models.Recipe),
		jobs:        make(map[string]*models.Job),
		articles:    make(map[string]*models.Article),
		tags:        make(map[string]*models.Tag),
		collections: make(map[string]*models.Collection),
		blobs:       make(map[string][]byte),
	}
}

func (m *Manager) SourceStorage() interfaces.SourceStorage         { return (*sourceStore)(m) }
func (m *Manager) RecipeStorage() interfaces.RecipeStorage         { return (*recipeStore)(m) }
func (m *Manager) JobStorage() interfaces.JobStorage               { return (*jobStore)(m) }
func (m *Manager) ArticleStorage() interfaces.ArticleStorage       { return (*articleStore)(m) }
func (m *Manager) TagStorage() interfaces.TagStorage               { return (*tagStore)(m) }
func (m *Manager) CollectionStorage() interfaces.CollectionStorage { return (*collectionStore)(m) }
func (m *Manager) BlobStorage() interfaces.BlobStorage             { return (*blobStore)(m) }

// Close discards nothing; the maps live until the Manager is collected
func (m *Manager) Close() error { return nil }

// --- sources ---

type sourceStore Manager

func (s *sourceStore) SaveSource(ctx context.Context, source *models.Source) error {
	if err := source.Validate(); err != nil {
		return models.NewValidationError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	source.UpdatedAt = now
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	cp := *source
	s.sources[source.ID] = &cp
	return nil
}

func (s *sourceStore) GetSource(ctx context.Context, id string) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", id, models.ErrNotFound)
	}
	cp := *source
	return &cp, nil
}

func (s *sourceStore) ListSources(ctx context.Context) ([]*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Source, 0, len(s.sources))
	for _, source := range s.sources {
		cp := *source
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *sourceStore) FindDueActiveSources(ctx context.Context, now time.Time) ([]*models.Source, error) {
	sources, err := s.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	due := []*models.Source{}
	for _, source := range sources {
		if source.Status != models.SourceStatusActive || source.Schedule == "" {
			continue
		}
		ok, err := source.IsDue(now)
		if err != nil {
			continue
		}
		if ok {
			due = append(due, source)
		}
	}
	return due, nil
}

func (s *sourceStore) UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, models.ErrNotFound)
	}
	source.LastRun = lastRun
	source.UpdatedAt = time.Now()
	return nil
}

func (s *sourceStore) SetStatus(ctx context.Context, id string, status models.SourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, models.ErrNotFound)
	}
	source.Status = status
	source.UpdatedAt = time.Now()
	return nil
}

func (s *sourceStore) RecordJobOutcome(ctx context.Context, id string, failed bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[id]
	if !ok {
		return 0, fmt.Errorf("source %s: %w", id, models.ErrNotFound)
	}
	if failed {
		source.ConsecutiveFailures++
	} else {
		source.ConsecutiveFailures = 0
	}
	source.UpdatedAt = time.Now()
	return source.ConsecutiveFailures, nil
}

func (s *sourceStore) DeleteSource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
	for jobID, job := range s.jobs {
		if job.SourceID == id {
			delete(s.jobs, jobID)
		}
	}
	for articleID, article := range s.articles {
		if article.SourceID == id {
			delete(s.articles, articleID)
		}
	}
	return nil
}

// --- recipes ---

type recipeStore Manager

func (r *recipeStore) SaveRecipe(ctx context.Context, recipe *models.Recipe) error {
	if recipe.ID == "" {
		return fmt.Errorf("recipe ID is required")
	}
	if err := recipe.Validate(); err != nil {
		return models.NewValidationError(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	recipe.UpdatedAt = now
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = now
	}
	cp := *recipe
	r.recipes[recipe.ID] = &cp
	return nil
}

func (r *recipeStore) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recipe, ok := r.recipes[id]
	if !ok {
		return nil, fmt.Errorf("recipe %s: %w", id, models.ErrNotFound)
	}
	cp := *recipe
	return &cp, nil
}

func (r *recipeStore) DeleteRecipe(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recipes, id)
	for _, source := range r.sources {
		if source.RecipeID == id {
			source.RecipeID = ""
		}
	}
	return nil
}

// --- jobs ---

type jobStore Manager

func (j *jobStore) CreateJob(ctx context.Context, sourceID string) (*models.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	job := &models.Job{
		ID:        common.NewJobID(),
		SourceID:  sourceID,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	j.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (j *jobStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

func (j *jobStore) Transition(ctx context.Context, id string, next models.JobStatus, mutate func(*models.Job)) (*models.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if err := job.Transition(next, time.Now()); err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(job)
	}
	cp := *job
	return &cp, nil
}

func (j *jobStore) SetQueueID(ctx context.Context, id, queueID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	job.QueueID = queueID
	return nil
}

func (j *jobStore) HasActiveJob(ctx context.Context, sourceID string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, job := range j.jobs {
		if job.SourceID == sourceID && !job.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (j *jobStore) AddArticlesNew(ctx context.Context, id string, delta int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	job.ArticlesNew += delta
	job.UpdatedAt = time.Now()
	return nil
}

func (j *jobStore) AppendError(ctx context.Context, id string, msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if job.Error == "" {
		job.Error = msg
	} else {
		job.Error = strings.Join([]string{job.Error, msg}, "\n")
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (j *jobStore) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := []*models.Job{}
	for _, job := range j.jobs {
		if opts != nil {
			if opts.SourceID != "" && job.SourceID != opts.SourceID {
				continue
			}
			if opts.Status != "" && job.Status != opts.Status {
				continue
			}
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(out) {
				return []*models.Job{}, nil
			}
			out = out[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(out) {
			out = out[:opts.Limit]
		}
	}
	return out, nil
}

// --- articles ---

type articleStore Manager

func (a *articleStore) SaveArticle(ctx context.Context, article *models.Article) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	article.UpdatedAt = now
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	cp := *article
	a.articles[article.ID] = &cp
	return nil
}

func (a *articleStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	article, ok := a.articles[id]
	if !ok {
		return nil, fmt.Errorf("article %s: %w", id, models.ErrNotFound)
	}
	cp := *article
	return &cp, nil
}

func (a *articleStore) FindArticleByURL(ctx context.Context, url string) (*models.Article, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, article := range a.articles {
		if article.URL == url {
			cp := *article
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("article url %s: %w", url, models.ErrNotFound)
}

func (a *articleStore) ListArticlesBySource(ctx context.Context, sourceID string, limit, offset int) ([]*models.Article, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []*models.Article{}
	for _, article := range a.articles {
		if article.SourceID == sourceID {
			cp := *article
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArchivedAt.After(out[j].ArchivedAt) })
	if offset > 0 {
		if offset >= len(out) {
			return []*models.Article{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (a *articleStore) CountArticles(ctx context.Context, sourceID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, article := range a.articles {
		if sourceID == "" || article.SourceID == sourceID {
			count++
		}
	}
	return count, nil
}

// --- tags ---

type tagStore Manager

func (t *tagStore) SaveTag(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		return fmt.Errorf("tag ID is required")
	}
	if strings.TrimSpace(tag.Name) == "" {
		return models.NewValidationError(fmt.Errorf("tag name is required"))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	tag.UpdatedAt = now
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = now
	}
	cp := *tag
	t.tags[tag.ID] = &cp
	return nil
}

func (t *tagStore) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tag, ok := t.tags[id]
	if !ok {
		return nil, fmt.Errorf("tag %s: %w", id, models.ErrNotFound)
	}
	cp := *tag
	return &cp, nil
}

func (t *tagStore) ListTags(ctx context.Context) ([]*models.Tag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.Tag, 0, len(t.tags))
	for _, tag := range t.tags {
		cp := *tag
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *tagStore) DeleteTag(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tags, id)
	kept := t.articleTags[:0]
	for _, m := range t.articleTags {
		if m.TagID != id {
			kept = append(kept, m)
		}
	}
	t.articleTags = kept
	return nil
}

func (t *tagStore) TagArticle(ctx context.Context, articleID, tagID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tags[tagID]; !ok {
		return fmt.Errorf("tag %s: %w", tagID, models.ErrNotFound)
	}
	for _, m := range t.articleTags {
		if m.ArticleID == articleID && m.TagID == tagID {
			return nil
		}
	}
	t.articleTags = append(t.articleTags, models.ArticleTag{
		ID:        uint64(len(t.articleTags) + 1),
		ArticleID: articleID,
		TagID:     tagID,
	})
	return nil
}

func (t *tagStore) UntagArticle(ctx context.Context, articleID, tagID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.articleTags[:0]
	for _, m := range t.articleTags {
		if !(m.ArticleID == articleID && m.TagID == tagID) {
			kept = append(kept, m)
		}
	}
	t.articleTags = kept
	return nil
}

func (t *tagStore) ListArticleTags(ctx context.Context, articleID string) ([]*models.Tag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := []*models.Tag{}
	for _, m := range t.articleTags {
		if m.ArticleID != articleID {
			continue
		}
		if tag, ok := t.tags[m.TagID]; ok {
			cp := *tag
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- collections ---

type collectionStore Manager

func (c *collectionStore) SaveCollection(ctx context.Context, collection *models.Collection) error {
	if collection.ID == "" {
		return fmt.Errorf("collection ID is required")
	}
	if strings.TrimSpace(collection.Name) == "" {
		return models.NewValidationError(fmt.Errorf("collection name is required"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	collection.UpdatedAt = now
	if collection.CreatedAt.IsZero() {
		collection.CreatedAt = now
	}
	cp := *collection
	c.collections[collection.ID] = &cp
	return nil
}

func (c *collectionStore) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	collection, ok := c.collections[id]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", id, models.ErrNotFound)
	}
	cp := *collection
	return &cp, nil
}

func (c *collectionStore) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Collection, 0, len(c.collections))
	for _, collection := range c.collections {
		cp := *collection
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *collectionStore) DeleteCollection(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.collections, id)
	kept := c.collectionArticles[:0]
	for _, m := range c.collectionArticles {
		if m.CollectionID != id {
			kept = append(kept, m)
		}
	}
	c.collectionArticles = kept
	return nil
}

func (c *collectionStore) AddArticle(ctx context.Context, collectionID, articleID string, position int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collections[collectionID]; !ok {
		return fmt.Errorf("collection %s: %w", collectionID, models.ErrNotFound)
	}
	if position <= 0 {
		max := 0
		for _, m := range c.collectionArticles {
			if m.CollectionID == collectionID && m.Position > max {
				max = m.Position
			}
		}
		position = max + 1
	} else {
		for i := range c.collectionArticles {
			m := &c.collectionArticles[i]
			if m.CollectionID == collectionID && m.ArticleID != articleID && m.Position >= position {
				m.Position++
			}
		}
	}
	for i := range c.collectionArticles {
		m := &c.collectionArticles[i]
		if m.CollectionID == collectionID && m.ArticleID == articleID {
			m.Position = position
			return nil
		}
	}
	c.collectionArticles = append(c.collectionArticles, models.CollectionArticle{
		ID:           uint64(len(c.collectionArticles) + 1),
		CollectionID: collectionID,
		ArticleID:    articleID,
		Position:     position,
	})
	return nil
}

func (c *collectionStore) RemoveArticle(ctx context.Context, collectionID, articleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.collectionArticles[:0]
	for _, m := range c.collectionArticles {
		if !(m.CollectionID == collectionID && m.ArticleID == articleID) {
			kept = append(kept, m)
		}
	}
	c.collectionArticles = kept
	return nil
}

func (c *collectionStore) ListArticleIDs(ctx context.Context, collectionID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := []models.CollectionArticle{}
	for _, m := range c.collectionArticles {
		if m.CollectionID == collectionID {
			members = append(members, m)
		}
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].Position < members[j].Position })
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ArticleID
	}
	return ids, nil
}

// --- blobs ---

type blobStore Manager

func (b *blobStore) Put(ctx context.Context, fingerprint string, content []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.blobs[fingerprint]; exists {
		return nil
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	b.blobs[fingerprint] = cp
	return nil
}

func (b *blobStore) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.blobs[fingerprint]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", fingerprint, models.ErrNotFound)
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	return cp, nil
}

func (b *blobStore) Has(ctx context.Context, fingerprint string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[fingerprint]
	return ok, nil
}

// BlobCount reports the number of stored blobs, used by tests to assert
// dedup wrote nothing
func (m *Manager) BlobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

var _ interfaces.StorageManager = (*Manager)(nil)
