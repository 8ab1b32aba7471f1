package interfaces

import (
	"context"
	"time"

	"github.com/NickHafner/scraper/internal/models"
)

// ExtractedArticle is the result of applying a recipe to one page
type ExtractedArticle struct {
	Title       string
	Content     string
	Author      string
	PublishedAt time.Time
	Metadata    map[string]any
}

// RecipeEvaluator applies a recipe to pages. The orchestration core
// treats it as an opaque capability that may fail or time out; failures
// carry the models error taxonomy so workers can classify retries.
type RecipeEvaluator interface {
	// ListArticleLinks fetches one listing page and returns the
	// candidate article URLs it contains plus the next page URL when
	// the recipe's pagination strategy discovers one (empty otherwise).
	ListArticleLinks(ctx context.Context, pageURL string, recipe *models.Recipe, page int) (links []string, nextURL string, err error)
	// ExtractArticle fetches one article page and extracts its fields
	ExtractArticle(ctx context.Context, url string, recipe *models.Recipe) (*ExtractedArticle, error)
}
