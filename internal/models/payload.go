package models

import "encoding/json"

// Queue names for the two work channels
const (
	QueueScrape  = "scrape"
	QueueArticle = "article"
)

// ScrapePayload is the wire contract for scrape queue messages. The
// recipe is snapshot into the payload so a running job is isolated from
// later recipe edits.
type ScrapePayload struct {
	JobID    string  `json:"job_id"`
	SourceID string  `json:"source_id"`
	RecipeID string  `json:"recipe_id,omitempty"`
	MaxPages int     `json:"max_pages,omitempty"`
	Recipe   *Recipe `json:"recipe,omitempty"`
}

// ArticlePayload is the wire contract for article queue messages.
// JobID references the owning scrape run so outcomes aggregate there.
type ArticlePayload struct {
	URL      string  `json:"url"`
	SourceID string  `json:"source_id"`
	RecipeID string  `json:"recipe_id,omitempty"`
	JobID    string  `json:"job_id"`
	Recipe   *Recipe `json:"recipe,omitempty"`
}

// ToJSON serializes the payload for enqueueing
func (p *ScrapePayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// ScrapePayloadFromJSON decodes a scrape queue message body
func ScrapePayloadFromJSON(data []byte) (*ScrapePayload, error) {
	var p ScrapePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ToJSON serializes the payload for enqueueing
func (p *ArticlePayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// ArticlePayloadFromJSON decodes an article queue message body
func ArticlePayloadFromJSON(data []byte) (*ArticlePayload, error) {
	var p ArticlePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
