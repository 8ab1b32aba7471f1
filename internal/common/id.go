package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewArticleID generates a unique article ID with the "art_" prefix
func NewArticleID() string {
	return "art_" + uuid.New().String()
}

// NewSourceID generates a unique source ID with the "src_" prefix
func NewSourceID() string {
	return "src_" + uuid.New().String()
}

// NewRecipeID generates a unique recipe ID with the "rcp_" prefix
func NewRecipeID() string {
	return "rcp_" + uuid.New().String()
}

// NewTagID generates a unique tag ID with the "tag_" prefix
func NewTagID() string {
	return "tag_" + uuid.New().String()
}

// NewCollectionID generates a unique collection ID with the "col_" prefix
func NewCollectionID() string {
	return "col_" + uuid.New().String()
}
