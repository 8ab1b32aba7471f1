package evaluator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/models"
)

const listingHTML = `<!DOCTYPE html>
<html><head><title>News</title></head><body>
<div class="article-list">
  <a href="/articles/1">First</a>
  <a href="https://other.example.com/articles/2">Second</a>
  <a href="/articles/1#comments">First again</a>
  <a href="mailto:editor@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
</div>
<a class="next" href="/news/page/2">Next</a>
<footer><a href="/about">About</a></footer>
</body></html>`

const articleHTML = `<!DOCTYPE html>
<html><head>
<title>Fallback Title</title>
<meta name="author" content="Jane Writer">
<meta property="article:published_time" content="2025-05-01T09:30:00Z">
<meta name="description" content="A test article">
</head><body>
<h1 class="headline">Selected Title</h1>
<article class="post">
  <p>First paragraph.</p>
  <p>Second <strong>bold</strong> paragraph.</p>
</article>
</body></html>`

func newTestService(t *testing.T, handler http.Handler) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fetcher := NewFetcher(common.FetchConfig{
		Timeout:           "5s",
		RequestsPerSecond: 100,
	}, common.GetLogger())
	return NewService(fetcher, common.GetLogger()), srv
}

func TestService_ListArticleLinks(t *testing.T) {
	ctx := context.Background()
	svc, srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingHTML))
	}))

	t.Run("Scoped selector with click pagination", func(t *testing.T) {
		recipe := &models.Recipe{
			Name:       "news",
			Selectors:  models.Selectors{ArticleLinks: ".article-list a"},
			Pagination: models.Pagination{Kind: models.PaginationClick, Selector: "a.next"},
		}

		links, next, err := svc.ListArticleLinks(ctx, srv.URL+"/news", recipe, 1)
		require.NoError(t, err)

		// Relative links resolve, fragments collapse into the same URL,
		// mailto and javascript are dropped
		assert.Equal(t, []string{
			srv.URL + "/articles/1",
			"https://other.example.com/articles/2",
		}, links)
		assert.Equal(t, srv.URL+"/news/page/2", next)
	})

	t.Run("Default selector takes every anchor", func(t *testing.T) {
		links, next, err := svc.ListArticleLinks(ctx, srv.URL+"/news", &models.Recipe{Name: "bare"}, 1)
		require.NoError(t, err)
		assert.Contains(t, links, srv.URL+"/about")
		assert.Empty(t, next, "no pagination configured")
	})
}

func TestService_ExtractArticle(t *testing.T) {
	ctx := context.Background()
	svc, srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleHTML))
	}))

	t.Run("Recipe selectors", func(t *testing.T) {
		recipe := &models.Recipe{
			Name: "post",
			Selectors: models.Selectors{
				Title:   "h1.headline",
				Content: "article.post",
			},
		}

		article, err := svc.ExtractArticle(ctx, srv.URL+"/articles/1", recipe)
		require.NoError(t, err)

		assert.Equal(t, "Selected Title", article.Title)
		assert.Contains(t, article.Content, "First paragraph.")
		assert.Contains(t, article.Content, "**bold**", "content should be markdown")
		assert.NotContains(t, article.Content, "<p>")
		assert.Equal(t, "Jane Writer", article.Author)
		assert.Equal(t, time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC), article.PublishedAt.UTC())
		assert.Equal(t, "A test article", article.Metadata["description"])
	})

	t.Run("Heuristic fallbacks without a recipe", func(t *testing.T) {
		article, err := svc.ExtractArticle(ctx, srv.URL+"/articles/1", &models.Recipe{Name: "bare"})
		require.NoError(t, err)
		assert.Equal(t, "Fallback Title", article.Title)
		assert.Contains(t, article.Content, "First paragraph.")
	})

	t.Run("Content selector miss is a terminal extraction failure", func(t *testing.T) {
		recipe := &models.Recipe{
			Name:      "wrong",
			Selectors: models.Selectors{Content: "div.no-such-thing"},
		}
		_, err := svc.ExtractArticle(ctx, srv.URL+"/articles/1", recipe)
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindExtraction, models.KindOf(err))
	})
}

func TestFetcher_StatusClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("Server errors are transient", func(t *testing.T) {
		svc, srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		_, _, err := svc.ListArticleLinks(ctx, srv.URL, &models.Recipe{Name: "r"}, 1)
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindTransientFetch, models.KindOf(err))
	})

	t.Run("Client errors are extraction failures", func(t *testing.T) {
		svc, srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		_, err := svc.ExtractArticle(ctx, srv.URL+"/gone", &models.Recipe{Name: "r"})
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindExtraction, models.KindOf(err))
	})

	t.Run("Too many requests is transient", func(t *testing.T) {
		svc, srv := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		_, err := svc.ExtractArticle(ctx, srv.URL, &models.Recipe{Name: "r"})
		require.Error(t, err)
		assert.Equal(t, models.ErrorKindTransientFetch, models.KindOf(err))
	})
}

func TestFetcher_BodyCap(t *testing.T) {
	ctx := context.Background()
	huge := strings.Repeat("x", 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(huge))
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher(common.FetchConfig{
		Timeout:           "5s",
		RequestsPerSecond: 100,
		MaxBodySize:       1024,
	}, common.GetLogger())

	_, err := fetcher.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindExtraction, models.KindOf(err))
}

func TestFetcher_UserAgent(t *testing.T) {
	ctx := context.Background()
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher(common.FetchConfig{
		UserAgent:         "custom-agent/1.0",
		RequestsPerSecond: 100,
	}, common.GetLogger())

	_, err := fetcher.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "custom-agent/1.0", gotUA)
}
