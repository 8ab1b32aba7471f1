package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// RecipeStorage implements the RecipeStorage interface for Badger
type RecipeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecipeStorage creates a new RecipeStorage instance
func NewRecipeStorage(db *BadgerDB, logger arbor.ILogger) *RecipeStorage {
	return &RecipeStorage{db: db, logger: logger}
}

func (s *RecipeStorage) SaveRecipe(ctx context.Context, recipe *models.Recipe) error {
	if recipe.ID == "" {
		return fmt.Errorf("recipe ID is required")
	}
	if err := recipe.Validate(); err != nil {
		return models.NewValidationError(err)
	}
	recipe.UpdatedAt = time.Now()
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = recipe.UpdatedAt
	}
	if err := s.db.Store().Upsert(recipe.ID, recipe); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to save recipe: %w", err))
	}
	return nil
}

func (s *RecipeStorage) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	var recipe models.Recipe
	if err := s.db.Store().Get(id, &recipe); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("recipe %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewPersistenceError(fmt.Errorf("failed to get recipe: %w", err))
	}
	return &recipe, nil
}

// DeleteRecipe removes the recipe and nulls the reference on any source
// pointing at it. Recipes are referenced, not owned: no cascade.
func (s *RecipeStorage) DeleteRecipe(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Recipe{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return models.NewPersistenceError(fmt.Errorf("failed to delete recipe: %w", err))
	}

	var sources []models.Source
	if err := s.db.Store().Find(&sources, badgerhold.Where("RecipeID").Eq(id)); err != nil {
		return models.NewPersistenceError(fmt.Errorf("failed to find referencing sources: %w", err))
	}
	for i := range sources {
		sources[i].RecipeID = ""
		sources[i].UpdatedAt = time.Now()
		if err := s.db.Store().Update(sources[i].ID, &sources[i]); err != nil {
			return models.NewPersistenceError(fmt.Errorf("failed to null recipe reference on source %s: %w", sources[i].ID, err))
		}
	}
	return nil
}

var _ interfaces.RecipeStorage = (*RecipeStorage)(nil)
