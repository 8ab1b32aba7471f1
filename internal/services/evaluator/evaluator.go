package evaluator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// Fallback selectors applied when a recipe leaves a field blank
const (
	defaultLinkSelector    = "a[href]"
	defaultContentSelector = "article, main"
)

// Service applies recipes to live pages: listing pages yield article
// links, article pages yield extracted fields. Implements
// interfaces.RecipeEvaluator.
type Service struct {
	fetcher *Fetcher
	logger  arbor.ILogger
}

// NewService creates a recipe evaluator backed by the given fetcher
func NewService(fetcher *Fetcher, logger arbor.ILogger) *Service {
	return &Service{
		fetcher: fetcher,
		logger:  logger,
	}
}

// ListArticleLinks fetches one listing page and returns the candidate
// article URLs it contains, resolved to absolute form and deduplicated
// in document order. For click pagination the next page URL is read
// from the recipe's next-page selector; other strategies return empty
// and leave page advancement to the caller.
func (s *Service) ListArticleLinks(ctx context.Context, pageURL string, recipe *models.Recipe, page int) ([]string, string, error) {
	html, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", models.NewExtractionError(fmt.Errorf("parse listing page %s: %w", pageURL, err))
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", models.NewValidationError(fmt.Errorf("invalid page url %s: %w", pageURL, err))
	}

	selector := recipe.Selectors.ArticleLinks
	if selector == "" {
		selector = defaultLinkSelector
	}

	seen := make(map[string]bool)
	links := []string{}
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			// Selector matched a container; look for the anchor inside
			href, ok = sel.Find("a[href]").First().Attr("href")
		}
		if !ok {
			return
		}
		resolved := resolveLink(base, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})

	nextURL := ""
	if recipe.Pagination.Kind == models.PaginationClick {
		if href, ok := doc.Find(recipe.Pagination.Selector).First().Attr("href"); ok {
			nextURL = resolveLink(base, href)
		}
	}

	s.logger.Debug().
		Str("url", pageURL).
		Int("page", page).
		Int("links", len(links)).
		Str("next_url", nextURL).
		Msg("Listed article links")

	return links, nextURL, nil
}

// ExtractArticle fetches one article page and applies the recipe's
// field selectors, falling back to common document heuristics where the
// recipe is silent. Content comes back as markdown.
func (s *Service) ExtractArticle(ctx context.Context, articleURL string, recipe *models.Recipe) (*interfaces.ExtractedArticle, error) {
	html, err := s.fetcher.Fetch(ctx, articleURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, models.NewExtractionError(fmt.Errorf("parse article page %s: %w", articleURL, err))
	}

	base, err := url.Parse(articleURL)
	if err != nil {
		return nil, models.NewValidationError(fmt.Errorf("invalid article url %s: %w", articleURL, err))
	}

	contentHTML, err := s.selectContent(doc, recipe)
	if err != nil {
		return nil, fmt.Errorf("article %s: %w", articleURL, err)
	}

	converter := md.NewConverter(base.Host, true, nil)
	content, err := converter.ConvertString(contentHTML)
	if err != nil {
		return nil, models.NewExtractionError(fmt.Errorf("convert article %s to markdown: %w", articleURL, err))
	}

	article := &interfaces.ExtractedArticle{
		Title:       s.selectTitle(doc, recipe),
		Content:     content,
		Author:      s.selectAuthor(doc, recipe),
		PublishedAt: s.selectPublishedAt(doc, recipe),
	}
	if desc, ok := metaContent(doc, "meta[name='description']"); ok {
		article.Metadata = map[string]any{"description": desc}
	}

	s.logger.Debug().
		Str("url", articleURL).
		Str("title", article.Title).
		Int("content_length", len(article.Content)).
		Msg("Extracted article")

	return article, nil
}

// selectContent returns the HTML of the recipe's content region. A
// configured selector that matches nothing is an extraction failure;
// the built-in fallback degrades to the whole body instead.
func (s *Service) selectContent(doc *goquery.Document, recipe *models.Recipe) (string, error) {
	if recipe.Selectors.Content != "" {
		sel := doc.Find(recipe.Selectors.Content)
		if sel.Length() == 0 {
			return "", models.NewExtractionError(fmt.Errorf("content selector %q matched nothing", recipe.Selectors.Content))
		}
		return outerHTML(sel)
	}
	sel := doc.Find(defaultContentSelector)
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}
	if sel.Length() == 0 {
		return "", models.NewExtractionError(fmt.Errorf("page has no extractable content"))
	}
	return outerHTML(sel)
}

func (s *Service) selectTitle(doc *goquery.Document, recipe *models.Recipe) string {
	if recipe.Selectors.Title != "" {
		if title := strings.TrimSpace(doc.Find(recipe.Selectors.Title).First().Text()); title != "" {
			return title
		}
	}
	if title, ok := metaContent(doc, "meta[property='og:title']"); ok {
		return title
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func (s *Service) selectAuthor(doc *goquery.Document, recipe *models.Recipe) string {
	if recipe.Selectors.Author != "" {
		if author := strings.TrimSpace(doc.Find(recipe.Selectors.Author).First().Text()); author != "" {
			return author
		}
	}
	if author, ok := metaContent(doc, "meta[name='author']"); ok {
		return author
	}
	return ""
}

func (s *Service) selectPublishedAt(doc *goquery.Document, recipe *models.Recipe) time.Time {
	candidates := []string{}
	if recipe.Selectors.Date != "" {
		sel := doc.Find(recipe.Selectors.Date).First()
		if dt, ok := sel.Attr("datetime"); ok {
			candidates = append(candidates, dt)
		}
		candidates = append(candidates, strings.TrimSpace(sel.Text()))
	}
	if dt, ok := metaContent(doc, "meta[property='article:published_time']"); ok {
		candidates = append(candidates, dt)
	}
	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, dt)
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
		"02 Jan 2006",
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// resolveLink makes href absolute against base and normalizes it.
// Returns empty for links that cannot become crawlable URLs.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)

	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	resolved.Fragment = ""

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func metaContent(doc *goquery.Document, selector string) (string, bool) {
	content, ok := doc.Find(selector).First().Attr("content")
	content = strings.TrimSpace(content)
	return content, ok && content != ""
}

func outerHTML(sel *goquery.Selection) (string, error) {
	html, err := goquery.OuterHtml(sel.First())
	if err != nil {
		return "", models.NewExtractionError(fmt.Errorf("serialize content: %w", err))
	}
	return html, nil
}

var _ interfaces.RecipeEvaluator = (*Service)(nil)
