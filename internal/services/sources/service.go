package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/interfaces"
	"github.com/NickHafner/scraper/internal/models"
)

// Definition is the schema of one source definition file. A file can
// declare any number of recipes and sources; sources reference recipes
// by id or name within the same load.
type Definition struct {
	Recipes []RecipeDefinition `toml:"recipe"`
	Sources []SourceDefinition `toml:"source"`
}

// RecipeDefinition declares one extraction recipe
type RecipeDefinition struct {
	ID          string            `toml:"id"`
	Name        string            `toml:"name" validate:"required"`
	Description string            `toml:"description"`
	Selectors   models.Selectors  `toml:"selectors"`
	Pagination  models.Pagination `toml:"pagination"`
	Filters     models.Filters    `toml:"filters"`
}

// SourceDefinition declares one crawl target
type SourceDefinition struct {
	ID       string `toml:"id"`
	Name     string `toml:"name" validate:"required"`
	URL      string `toml:"url" validate:"required,url"`
	Recipe   string `toml:"recipe"`
	Schedule string `toml:"schedule"`
	Paused   bool   `toml:"paused"`
}

// Validate checks the definition file schema
func (d *Definition) Validate() error {
	validate := validator.New()
	for i := range d.Recipes {
		if err := validate.Struct(&d.Recipes[i]); err != nil {
			return fmt.Errorf("recipe %d: %w", i, err)
		}
	}
	for i := range d.Sources {
		if err := validate.Struct(&d.Sources[i]); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
	}
	return nil
}

// Service is the management surface for sources and recipes: CRUD,
// pause/resume, and bulk loading of definition files.
type Service struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewService creates a source management service
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// CreateSource validates and persists a new source
func (s *Service) CreateSource(ctx context.Context, source *models.Source) error {
	if source.ID == "" {
		source.ID = common.NewSourceID()
	}
	if source.Status == "" {
		source.Status = models.SourceStatusActive
	}
	if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
		return err
	}
	s.logger.Info().
		Str("source_id", source.ID).
		Str("source_name", source.Name).
		Msg("Source created")
	return nil
}

// UpdateSource persists changes to an existing source
func (s *Service) UpdateSource(ctx context.Context, source *models.Source) error {
	if _, err := s.storage.SourceStorage().GetSource(ctx, source.ID); err != nil {
		return err
	}
	return s.storage.SourceStorage().SaveSource(ctx, source)
}

// DeleteSource removes a source and cascades to its jobs and articles
func (s *Service) DeleteSource(ctx context.Context, id string) error {
	if err := s.storage.SourceStorage().DeleteSource(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("source_id", id).Msg("Source deleted")
	return nil
}

// PauseSource stops scheduling without losing the source
func (s *Service) PauseSource(ctx context.Context, id string) error {
	return s.storage.SourceStorage().SetStatus(ctx, id, models.SourceStatusPaused)
}

// ResumeSource re-enables scheduling and clears the failure counter
func (s *Service) ResumeSource(ctx context.Context, id string) error {
	source, err := s.storage.SourceStorage().GetSource(ctx, id)
	if err != nil {
		return err
	}
	source.Status = models.SourceStatusActive
	source.ConsecutiveFailures = 0
	return s.storage.SourceStorage().SaveSource(ctx, source)
}

// CreateRecipe validates and persists a new recipe
func (s *Service) CreateRecipe(ctx context.Context, recipe *models.Recipe) error {
	if recipe.ID == "" {
		recipe.ID = common.NewRecipeID()
	}
	return s.storage.RecipeStorage().SaveRecipe(ctx, recipe)
}

// LoadDirectory reads every .toml definition file in dir and upserts
// the recipes and sources it declares. Files load in name order;
// invalid files are skipped with a warning so one bad definition never
// blocks startup. Returns the number of sources loaded.
func (s *Service) LoadDirectory(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("dir", dir).Msg("No source definition directory")
			return 0, nil
		}
		return 0, fmt.Errorf("read definition directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		n, err := s.loadFile(ctx, path)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("file", path).
				Msg("Skipping invalid definition file")
			continue
		}
		loaded += n
	}

	if loaded > 0 {
		s.logger.Info().
			Int("sources", loaded).
			Str("dir", dir).
			Msg("Loaded source definitions")
	}
	return loaded, nil
}

func (s *Service) loadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	var def Definition
	if err := toml.Unmarshal(data, &def); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return 0, fmt.Errorf("validate %s: %w", path, err)
	}

	// Recipes first so sources can reference them by name
	recipeIDs := make(map[string]string)
	for i := range def.Recipes {
		rd := &def.Recipes[i]
		recipe := &models.Recipe{
			ID:          rd.ID,
			Name:        rd.Name,
			Description: rd.Description,
			Selectors:   rd.Selectors,
			Pagination:  rd.Pagination,
			Filters:     rd.Filters,
		}
		if recipe.ID == "" {
			recipe.ID = common.NewRecipeID()
		}
		if err := s.storage.RecipeStorage().SaveRecipe(ctx, recipe); err != nil {
			return 0, fmt.Errorf("save recipe %s: %w", recipe.Name, err)
		}
		recipeIDs[rd.Name] = recipe.ID
		if rd.ID != "" {
			recipeIDs[rd.ID] = recipe.ID
		}
	}

	loaded := 0
	for i := range def.Sources {
		sd := &def.Sources[i]
		source := &models.Source{
			ID:       sd.ID,
			Name:     sd.Name,
			URL:      sd.URL,
			Schedule: sd.Schedule,
			Status:   models.SourceStatusActive,
		}
		if sd.Paused {
			source.Status = models.SourceStatusPaused
		}
		if sd.Recipe != "" {
			id, ok := recipeIDs[sd.Recipe]
			if !ok {
				return 0, fmt.Errorf("source %s references undeclared recipe %q", sd.Name, sd.Recipe)
			}
			source.RecipeID = id
		}

		// Re-loading an existing definition keeps run bookkeeping
		if source.ID != "" {
			if existing, err := s.storage.SourceStorage().GetSource(ctx, source.ID); err == nil {
				source.LastRun = existing.LastRun
				source.ConsecutiveFailures = existing.ConsecutiveFailures
				source.CreatedAt = existing.CreatedAt
				if existing.Status == models.SourceStatusError {
					source.Status = existing.Status
				}
			}
		} else {
			source.ID = common.NewSourceID()
		}

		if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
			return 0, fmt.Errorf("save source %s: %w", source.Name, err)
		}
		loaded++
	}

	return loaded, nil
}
