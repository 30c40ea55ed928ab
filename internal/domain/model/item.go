package model

// Item is a catalog entry that can be recommended.
// Category is resolved when the catalog is loaded.
type Item struct {
	ID          string   `json:"id" koanf:"id" validate:"required"`
	Category    string   `json:"category" koanf:"category" validate:"required"`
	Title       string   `json:"title,omitempty" koanf:"title"`
	Description string   `json:"description,omitempty" koanf:"description"`
	Tags        []string `json:"tags,omitempty" koanf:"tags"`
}

// RecommendationScore is the derived, non-persisted ranking of one item.
type RecommendationScore struct {
	ItemID  string   `json:"itemId"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}
