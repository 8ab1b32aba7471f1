package scraper

import (
	"strconv"
	"strings"

	"github.com/NickHafner/scraper/internal/models"
)

// NextPageURL computes the listing URL for page nextPage, or empty when
// the walk is over.
//
// URL pagination substitutes the page number into the recipe's pattern.
// Click pagination follows the next-page link the evaluator discovered
// on the current page. Infinite pagination renders everything reachable
// by a plain fetch on the first page, so there is never a second one.
func NextPageURL(recipe *models.Recipe, discoveredNext string, nextPage int) string {
	switch recipe.Pagination.Kind {
	case models.PaginationURL:
		return strings.ReplaceAll(recipe.Pagination.URLPattern, models.PagePlaceholder, strconv.Itoa(nextPage))
	case models.PaginationClick:
		return discoveredNext
	default:
		return ""
	}
}
