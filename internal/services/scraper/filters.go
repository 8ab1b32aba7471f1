package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/NickHafner/scraper/internal/models"
)

// regexPrefix switches a filter pattern from glob to regular
// expression matching
const regexPrefix = "re:"

type matcher func(string) bool

// LinkFilter applies a recipe's include/exclude patterns to discovered
// links. Patterns are glob by default ("*.pdf", "https://example.com/news/*");
// an "re:" prefix switches an individual pattern to regexp. With no
// include patterns every link passes the include stage; exclude
// patterns always veto.
type LinkFilter struct {
	include []matcher
	exclude []matcher
}

// NewLinkFilter compiles a recipe's filter patterns. Unparsable
// patterns are validation errors: retrying a delivery cannot fix a bad
// recipe snapshot.
func NewLinkFilter(filters models.Filters) (*LinkFilter, error) {
	include, err := compilePatterns(filters.Include)
	if err != nil {
		return nil, models.NewValidationError(fmt.Errorf("include filter: %w", err))
	}
	exclude, err := compilePatterns(filters.Exclude)
	if err != nil {
		return nil, models.NewValidationError(fmt.Errorf("exclude filter: %w", err))
	}
	return &LinkFilter{include: include, exclude: exclude}, nil
}

// Allow reports whether a link survives the filter chain
func (f *LinkFilter) Allow(link string) bool {
	if len(f.include) > 0 {
		matched := false
		for _, m := range f.include {
			if m(link) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, m := range f.exclude {
		if m(link) {
			return false
		}
	}
	return true
}

func compilePatterns(patterns []string) ([]matcher, error) {
	matchers := make([]matcher, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if expr, ok := strings.CutPrefix(pattern, regexPrefix); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("invalid regexp %q: %w", expr, err)
			}
			matchers = append(matchers, re.MatchString)
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		matchers = append(matchers, g.Match)
	}
	return matchers, nil
}
