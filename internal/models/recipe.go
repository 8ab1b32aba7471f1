package models

import (
	"fmt"
	"strings"
	"time"
)

// PaginationKind selects how listing pages are walked
type PaginationKind string

const (
	// PaginationClick follows a next-page link found via a selector
	PaginationClick PaginationKind = "click"
	// PaginationURL substitutes a page number into a URL pattern
	PaginationURL PaginationKind = "url"
	// PaginationInfinite has no follow-up pages server-side; the first
	// page carries everything a plain fetch can see
	PaginationInfinite PaginationKind = "infinite"
)

// PagePlaceholder is the token replaced by the page number in URL
// pattern pagination
const PagePlaceholder = "{page}"

// Selectors are the CSS queries a recipe applies to pages. ArticleLinks
// runs on listing pages; the rest run on article pages. Empty selectors
// fall back to built-in heuristics.
type Selectors struct {
	ArticleLinks string `json:"article_links,omitempty" toml:"article_links"`
	Title        string `json:"title,omitempty" toml:"title"`
	Content      string `json:"content,omitempty" toml:"content"`
	Author       string `json:"author,omitempty" toml:"author"`
	Date         string `json:"date,omitempty" toml:"date"`
}

// Pagination configures listing page traversal. Selector is the
// next-page link for click pagination; URLPattern carries a {page}
// placeholder for url pagination.
type Pagination struct {
	Kind       PaginationKind `json:"kind,omitempty" toml:"kind"`
	Selector   string         `json:"selector,omitempty" toml:"selector"`
	URLPattern string         `json:"url_pattern,omitempty" toml:"url_pattern"`
	MaxPages   int            `json:"max_pages,omitempty" toml:"max_pages"`
}

// Filters narrow discovered links. Patterns are glob by default; a
// "re:" prefix switches a pattern to regular expression matching.
// Include patterns widen (any match passes), exclude patterns veto.
type Filters struct {
	Include []string `json:"include,omitempty" toml:"include"`
	Exclude []string `json:"exclude,omitempty" toml:"exclude"`
}

// Recipe describes how to scrape one family of pages: which links to
// collect from listings, how to paginate, and which fields to extract
// from articles. Jobs snapshot the recipe at enqueue time, so edits
// never affect runs already in flight.
type Recipe struct {
	ID          string     `json:"id" badgerhold:"key"`
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description,omitempty"`
	Selectors   Selectors  `json:"selectors"`
	Pagination  Pagination `json:"pagination"`
	Filters     Filters    `json:"filters"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EffectiveMaxPages returns the recipe's pagination bound, or fallback
// when the recipe does not set one. Always at least 1.
func (r *Recipe) EffectiveMaxPages(fallback int) int {
	pages := r.Pagination.MaxPages
	if pages <= 0 {
		pages = fallback
	}
	if pages <= 0 {
		pages = 1
	}
	return pages
}

// Validate checks recipe invariants before persistence
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("recipe name is required")
	}
	switch r.Pagination.Kind {
	case "", PaginationInfinite:
	case PaginationClick:
		if strings.TrimSpace(r.Pagination.Selector) == "" {
			return fmt.Errorf("click pagination requires a next-page selector")
		}
	case PaginationURL:
		if !strings.Contains(r.Pagination.URLPattern, PagePlaceholder) {
			return fmt.Errorf("url pagination pattern must contain %s", PagePlaceholder)
		}
	default:
		return fmt.Errorf("invalid pagination kind: %s", r.Pagination.Kind)
	}
	if r.Pagination.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	return nil
}
