package models

import "time"

// Article is one archived page. At most one row exists per URL; repeated
// crawls of the same URL mutate the existing row instead of inserting a
// duplicate. Version and ArchivedAt are monotonic.
type Article struct {
	ID       string `json:"id" badgerhold:"key"`
	SourceID string `json:"source_id"`
	// URL is the canonical article URL, unique across the system
	URL         string    `json:"url" badgerhold:"unique"`
	Title       string    `json:"title,omitempty"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	ArchivedAt  time.Time `json:"archived_at"`
	// ContentHash is the fingerprint of the normalized content; it keys
	// the blob store entry holding this version's content.
	ContentHash string `json:"content_hash"`
	// Version starts at 1 and increments every time re-crawled content
	// fingerprints differently. Prior versions' blobs stay retrievable
	// by their own hashes.
	Version   int            `json:"version"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Tag labels articles for the management layer
type Tag struct {
	ID        string    `json:"id" badgerhold:"key"`
	Name      string    `json:"name" badgerhold:"unique"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArticleTag joins articles to tags
type ArticleTag struct {
	ID        uint64 `json:"id" badgerhold:"key"`
	ArticleID string `json:"article_id" badgerhold:"index"`
	TagID     string `json:"tag_id" badgerhold:"index"`
}

// Collection is an ordered set of articles
type Collection struct {
	ID          string    `json:"id" badgerhold:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CollectionArticle joins collections to articles with an ordering position
type CollectionArticle struct {
	ID           uint64 `json:"id" badgerhold:"key"`
	CollectionID string `json:"collection_id" badgerhold:"index"`
	ArticleID    string `json:"article_id" badgerhold:"index"`
	Position     int    `json:"position"`
}
