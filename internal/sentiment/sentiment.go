// Package sentiment scores text polarity by counting positive and negative
// keywords.
package sentiment

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

// MaxTextLength is the number of characters kept from an analysed text.
const MaxTextLength = 1000

var (
	positiveWords = []string{"good", "great", "excellent", "amazing", "wonderful", "love", "like", "happy", "satisfied"}
	negativeWords = []string{"bad", "terrible", "awful", "hate", "dislike", "angry", "sad", "disappointed", "poor"}
)

// Result is the outcome of Analyze.
type Result struct {
	Score      float64
	Type       domain.SentimentType
	Confidence float64
	Keywords   []string
}

// Analyze scores text by the share of its words that are positive or
// negative. The larger share wins; a tie is neutral with score 0.5.
// Keywords are the first five words longer than three characters.
func Analyze(text string) Result {
	words := strings.Fields(strings.ToLower(text))

	var pos, neg int
	for _, w := range words {
		if slices.Contains(positiveWords, w) {
			pos++
		}
		if slices.Contains(negativeWords, w) {
			neg++
		}
	}

	res := Result{Score: 0.5, Type: domain.SentimentNeutral, Confidence: 0.5, Keywords: []string{}}
	if n := len(words); n > 0 {
		posRatio := float64(pos) / float64(n)
		negRatio := float64(neg) / float64(n)
		switch {
		case posRatio > negRatio:
			res.Score, res.Type = posRatio, domain.SentimentPositive
			res.Confidence = math.Min(0.9, posRatio+0.3)
		case negRatio > posRatio:
			res.Score, res.Type = negRatio, domain.SentimentNegative
			res.Confidence = math.Min(0.9, negRatio+0.3)
		}
	}
	res.Score = round3(res.Score)
	res.Confidence = round3(res.Confidence)

	for _, w := range words {
		if len(res.Keywords) == 5 {
			break
		}
		if utf8.RuneCountInString(w) > 3 {
			res.Keywords = append(res.Keywords, w)
		}
	}
	return res
}

// Truncate cuts text to MaxTextLength characters.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text
	}
	return string([]rune(text)[:MaxTextLength])
}

// Summary describes a set of stored analyses.
type Summary struct {
	Total             int            `json:"total"`
	BySentiment       map[string]int `json:"by_sentiment"`
	AverageScore      float64        `json:"average_score"`
	AverageConfidence float64        `json:"average_confidence"`
}

// Summarize counts analyses by polarity and averages score and confidence.
func Summarize(analyses []*domain.SentimentAnalysis) Summary {
	s := Summary{Total: len(analyses), BySentiment: map[string]int{}}
	if len(analyses) == 0 {
		return s
	}
	var score, confidence float64
	for _, a := range analyses {
		s.BySentiment[string(a.Type)]++
		score += a.Score
		confidence += a.Confidence
	}
	n := float64(len(analyses))
	s.AverageScore = round3(score / n)
	s.AverageConfidence = round3(confidence / n)
	return s
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
