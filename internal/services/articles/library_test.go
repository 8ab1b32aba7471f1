package articles

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/models"
	"github.com/NickHafner/scraper/internal/storage/memory"
)

func libraryFixture(t *testing.T, articleCount int) (*Library, *memory.Manager, []string) {
	t.Helper()
	store := memory.NewManager()
	lib := NewLibrary(store, common.GetLogger())

	ctx := context.Background()
	ids := make([]string, articleCount)
	for i := range ids {
		article := &models.Article{
			ID:       common.NewArticleID(),
			SourceID: "src_1",
			URL:      fmt.Sprintf("https://example.com/articles/%d", i+1),
			Title:    fmt.Sprintf("Article %d", i+1),
			Version:  1,
		}
		if err := store.ArticleStorage().SaveArticle(ctx, article); err != nil {
			t.Fatalf("SaveArticle failed: %v", err)
		}
		ids[i] = article.ID
	}
	return lib, store, ids
}

func TestLibrary_Tags(t *testing.T) {
	ctx := context.Background()

	t.Run("Tag lifecycle", func(t *testing.T) {
		lib, _, ids := libraryFixture(t, 1)

		tag := &models.Tag{Name: "golang"}
		if err := lib.CreateTag(ctx, tag); err != nil {
			t.Fatalf("CreateTag failed: %v", err)
		}
		if tag.ID == "" {
			t.Fatal("CreateTag did not assign an id")
		}

		if err := lib.TagArticle(ctx, ids[0], tag.ID); err != nil {
			t.Fatalf("TagArticle failed: %v", err)
		}
		// Tagging twice must not duplicate
		if err := lib.TagArticle(ctx, ids[0], tag.ID); err != nil {
			t.Fatalf("Repeat TagArticle failed: %v", err)
		}

		tags, err := lib.ArticleTags(ctx, ids[0])
		if err != nil {
			t.Fatalf("ArticleTags failed: %v", err)
		}
		if len(tags) != 1 || tags[0].Name != "golang" {
			t.Errorf("Expected a single golang tag, got %+v", tags)
		}

		if err := lib.UntagArticle(ctx, ids[0], tag.ID); err != nil {
			t.Fatalf("UntagArticle failed: %v", err)
		}
		tags, _ = lib.ArticleTags(ctx, ids[0])
		if len(tags) != 0 {
			t.Errorf("Expected no tags after untag, got %+v", tags)
		}
	})

	t.Run("Tagging an unknown article fails", func(t *testing.T) {
		lib, _, _ := libraryFixture(t, 0)
		tag := &models.Tag{Name: "orphan"}
		if err := lib.CreateTag(ctx, tag); err != nil {
			t.Fatalf("CreateTag failed: %v", err)
		}
		err := lib.TagArticle(ctx, "art_missing", tag.ID)
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Deleting a tag removes its memberships", func(t *testing.T) {
		lib, _, ids := libraryFixture(t, 1)
		tag := &models.Tag{Name: "shortlived"}
		if err := lib.CreateTag(ctx, tag); err != nil {
			t.Fatalf("CreateTag failed: %v", err)
		}
		if err := lib.TagArticle(ctx, ids[0], tag.ID); err != nil {
			t.Fatalf("TagArticle failed: %v", err)
		}

		if err := lib.DeleteTag(ctx, tag.ID); err != nil {
			t.Fatalf("DeleteTag failed: %v", err)
		}
		tags, err := lib.ArticleTags(ctx, ids[0])
		if err != nil {
			t.Fatalf("ArticleTags failed: %v", err)
		}
		if len(tags) != 0 {
			t.Errorf("Membership survived tag deletion: %+v", tags)
		}
	})

	t.Run("Nameless tag is rejected", func(t *testing.T) {
		lib, _, _ := libraryFixture(t, 0)
		err := lib.CreateTag(ctx, &models.Tag{Name: "  "})
		if err == nil {
			t.Fatal("Expected validation error")
		}
		if models.KindOf(err) != models.ErrorKindValidation {
			t.Errorf("Expected validation kind, got %v", err)
		}
	})
}

func TestLibrary_Collections(t *testing.T) {
	ctx := context.Background()

	t.Run("Members come back in position order", func(t *testing.T) {
		lib, _, ids := libraryFixture(t, 3)

		col := &models.Collection{Name: "Reading list"}
		if err := lib.CreateCollection(ctx, col); err != nil {
			t.Fatalf("CreateCollection failed: %v", err)
		}

		// Append all three, then move the last to the front
		for _, id := range ids {
			if err := lib.AddToCollection(ctx, col.ID, id, 0); err != nil {
				t.Fatalf("AddToCollection failed: %v", err)
			}
		}
		if err := lib.AddToCollection(ctx, col.ID, ids[2], 1); err != nil {
			t.Fatalf("Reposition failed: %v", err)
		}

		members, err := lib.CollectionArticles(ctx, col.ID)
		if err != nil {
			t.Fatalf("CollectionArticles failed: %v", err)
		}
		if len(members) != 3 {
			t.Fatalf("Expected 3 members, got %d", len(members))
		}
		if members[0].ID != ids[2] {
			t.Errorf("Expected repositioned article first, got %s", members[0].ID)
		}
	})

	t.Run("Removing a member keeps the rest", func(t *testing.T) {
		lib, _, ids := libraryFixture(t, 2)
		col := &models.Collection{Name: "Pair"}
		if err := lib.CreateCollection(ctx, col); err != nil {
			t.Fatalf("CreateCollection failed: %v", err)
		}
		for _, id := range ids {
			if err := lib.AddToCollection(ctx, col.ID, id, 0); err != nil {
				t.Fatalf("AddToCollection failed: %v", err)
			}
		}

		if err := lib.RemoveFromCollection(ctx, col.ID, ids[0]); err != nil {
			t.Fatalf("RemoveFromCollection failed: %v", err)
		}
		members, _ := lib.CollectionArticles(ctx, col.ID)
		if len(members) != 1 || members[0].ID != ids[1] {
			t.Errorf("Expected only the second article, got %+v", members)
		}
	})

	t.Run("Adding to an unknown collection fails", func(t *testing.T) {
		lib, _, ids := libraryFixture(t, 1)
		err := lib.AddToCollection(ctx, "col_missing", ids[0], 0)
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Deleting a collection leaves the articles", func(t *testing.T) {
		lib, store, ids := libraryFixture(t, 1)
		col := &models.Collection{Name: "Disposable"}
		if err := lib.CreateCollection(ctx, col); err != nil {
			t.Fatalf("CreateCollection failed: %v", err)
		}
		if err := lib.AddToCollection(ctx, col.ID, ids[0], 0); err != nil {
			t.Fatalf("AddToCollection failed: %v", err)
		}

		if err := lib.DeleteCollection(ctx, col.ID); err != nil {
			t.Fatalf("DeleteCollection failed: %v", err)
		}
		if _, err := store.ArticleStorage().GetArticle(ctx, ids[0]); err != nil {
			t.Errorf("Article should survive collection deletion: %v", err)
		}
		members, _ := lib.CollectionArticles(ctx, col.ID)
		if len(members) != 0 {
			t.Errorf("Expected empty membership, got %+v", members)
		}
	})
}
