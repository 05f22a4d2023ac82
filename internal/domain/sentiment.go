package domain

import (
	"slices"
	"time"
)

// SentimentType is the polarity assigned to a text.
type SentimentType string

// Sentiment polarities.
const (
	SentimentPositive SentimentType = "positive"
	SentimentNegative SentimentType = "negative"
	SentimentNeutral  SentimentType = "neutral"
)

// Valid reports whether t is a known polarity.
func (t SentimentType) Valid() bool {
	return slices.Contains([]SentimentType{SentimentPositive, SentimentNegative, SentimentNeutral}, t)
}

// SentimentAnalysis is a stored sentiment result for one text.
type SentimentAnalysis struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Source     string         `json:"source"`
	Score      float64        `json:"sentiment_score"`
	Type       SentimentType  `json:"sentiment_type"`
	Confidence float64        `json:"confidence"`
	Keywords   []string       `json:"keywords"`
	Context    map[string]any `json:"context,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
