package scraper

import (
	"testing"

	"github.com/NickHafner/scraper/internal/models"
)

func TestNextPageURL(t *testing.T) {
	tests := []struct {
		name           string
		recipe         models.Recipe
		discoveredNext string
		nextPage       int
		want           string
	}{
		{
			name: "URL pattern substitutes page number",
			recipe: models.Recipe{
				Name:       "archive",
				Pagination: models.Pagination{Kind: models.PaginationURL, URLPattern: "https://example.com/news?page={page}"},
			},
			nextPage: 3,
			want:     "https://example.com/news?page=3",
		},
		{
			name: "Click follows the discovered link",
			recipe: models.Recipe{
				Name:       "news",
				Pagination: models.Pagination{Kind: models.PaginationClick, Selector: "a.next"},
			},
			discoveredNext: "https://example.com/news/page/2",
			nextPage:       2,
			want:           "https://example.com/news/page/2",
		},
		{
			name: "Click with no discovered link ends the walk",
			recipe: models.Recipe{
				Name:       "news",
				Pagination: models.Pagination{Kind: models.PaginationClick, Selector: "a.next"},
			},
			nextPage: 2,
			want:     "",
		},
		{
			name: "Infinite never has a second page",
			recipe: models.Recipe{
				Name:       "feed",
				Pagination: models.Pagination{Kind: models.PaginationInfinite},
			},
			discoveredNext: "https://example.com/ignored",
			nextPage:       2,
			want:           "",
		},
		{
			name:     "No pagination configured",
			recipe:   models.Recipe{Name: "single"},
			nextPage: 2,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextPageURL(&tt.recipe, tt.discoveredNext, tt.nextPage)
			if got != tt.want {
				t.Errorf("NextPageURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
