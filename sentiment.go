package kuchikomi

import "strings"

// NegativeLexicon is the curated set of negative-indicator tokens for
// Japanese restaurant reviews, with per-term weights. Scoring is purely
// lexicon-driven; nothing is learned.
var NegativeLexicon = map[string]float64{
	"高い":     1,
	"遅い":     1,
	"最悪":     1,
	"残念":     1,
	"不味い":    1,
	"ひどい":    1,
	"汚い":     1,
	"小さい":    1,
	"高過ぎ":    1,
	"塩辛い":    1,
	"コスパ悪い":  1,
	"サービス悪い": 1,
}

// SentimentRecord is the per-review outcome: a non-negative score and
// the binary label derived from the threshold.
type SentimentRecord struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// SentimentScorer applies a deterministic lexicon rule to each review
// independently: the score is the weighted count of lexicon-term
// occurrences, and a score above the threshold labels the review
// negative. Appending lexicon occurrences to a review never decreases
// its score.
type SentimentScorer struct {
	lexicon   map[string]float64
	threshold float64
}

func NewSentimentScorer(lexicon map[string]float64, threshold float64) *SentimentScorer {
	return &SentimentScorer{lexicon: lexicon, threshold: threshold}
}

// Score evaluates one cleaned token sequence.
func (s *SentimentScorer) Score(tokens []string) SentimentRecord {
	score := 0.0
	for _, tok := range tokens {
		score += s.lexicon[tok]
	}
	label := "positive"
	if score > s.threshold {
		label = "negative"
	}
	return SentimentRecord{Score: score, Label: label}
}

// ScoreText evaluates a cleaned, token-joined string.
func (s *SentimentScorer) ScoreText(clean string) SentimentRecord {
	return s.Score(strings.Fields(clean))
}
