package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Product is the relational system of record for a catalog item.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Categories  []string  `json:"categories"`
	Price       Price     `json:"price"`
	Images      []string  `json:"images"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Normalize replaces nil collections with empty ones.
func (p Product) Normalize() Product {
	if p.Categories == nil {
		p.Categories = []string{}
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	return p
}

// VectorID is the key of the product's record in the vector index.
func (p Product) VectorID() string {
	return strconv.FormatInt(p.ID, 10)
}

// EmbeddingText is the text whose embedding represents the product.
func (p Product) EmbeddingText() string {
	parts := make([]string, 0, 2+len(p.Categories))
	parts = append(parts, p.Name, p.Description)
	parts = append(parts, p.Categories...)
	return strings.Join(parts, " ")
}

// VectorMetadata is the display copy stored next to the vector. It is never
// authoritative for serving.
func (p Product) VectorMetadata() map[string]string {
	return map[string]string{
		"name":        p.Name,
		"description": p.Description,
		"categories":  strings.Join(p.Categories, ","),
		"price":       p.Price.String(),
	}
}

// ContentChanged reports whether an edit touches the embedded content.
func (p Product) ContentChanged(next Product) bool {
	return p.Name != next.Name || p.Description != next.Description
}

// ParseVectorID converts a vector record id back to a product id.
func ParseVectorID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// MatchType tells how a search result was found.
type MatchType string

const (
	MatchNone   MatchType = ""
	MatchExact  MatchType = "exact"
	MatchVector MatchType = "vector"
)

// SearchResult is one ranked entry returned to search callers.
type SearchResult struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Categories  []string  `json:"categories"`
	Price       Price     `json:"price"`
	Images      []string  `json:"images"`
	ImageURL    string    `json:"image_url"`
	MatchType   MatchType `json:"_matchType,omitempty"`
	Score       float64   `json:"_score"`
}

// NewSearchResult builds a result from a product row.
func NewSearchResult(p Product, imageURL string, match MatchType, score float64) SearchResult {
	p = p.Normalize()
	return SearchResult{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Categories:  NormalizeCategories(p.Categories),
		Price:       p.Price,
		Images:      p.Images,
		ImageURL:    imageURL,
		MatchType:   match,
		Score:       score,
	}
}

// NormalizeCategories unwraps categories stored as JSON array strings
// (`["Cameras"]`) by older imports, keeping the first element.
func NormalizeCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		if (strings.HasPrefix(c, `["`) || strings.HasPrefix(c, `['`)) &&
			(strings.HasSuffix(c, `"]`) || strings.HasSuffix(c, `']`)) {
			var parsed []string
			if err := json.Unmarshal([]byte(c), &parsed); err == nil && len(parsed) > 0 {
				out = append(out, parsed[0])
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Progress is the durable checkpoint of a bulk re-embedding job.
type Progress struct {
	ProcessedIDs   []int64   `json:"processedIds"`
	LastBatchIndex int       `json:"lastBatchIndex"`
	Timestamp      time.Time `json:"timestamp"`
}

// Done returns the processed ids as a set.
func (p Progress) Done() map[int64]bool {
	done := make(map[int64]bool, len(p.ProcessedIDs))
	for _, id := range p.ProcessedIDs {
		done[id] = true
	}
	return done
}
