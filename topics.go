package kuchikomi

import (
	"fmt"
	"log"
	"sort"

	"github.com/james-bowman/nlp"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// TopicModel fits a Latent Dirichlet Allocation over the raw term-count
// matrix: each review is a mixture over latent topics, each topic a
// distribution over vocabulary terms. Fits are seeded and single-process
// so results are reproducible.
type TopicModel struct {
	cfg  TopicsConfig
	seed int64
}

// TopicResult holds per-review topic distributions (rows sum to 1),
// dominant topics, and the ranked top terms for each topic.
type TopicResult struct {
	NTopics       int         `json:"n_topics"`
	Distributions [][]float64 `json:"distributions"`
	Dominant      []int       `json:"dominant"`
	TopTerms      [][]string  `json:"top_terms"`
}

func NewTopicModel(cfg TopicsConfig, seed int64) *TopicModel {
	return &TopicModel{cfg: cfg, seed: seed}
}

// Fit runs the LDA optimization over counts. Configuration is checked
// before any iteration runs: a non-positive topic count or one exceeding
// the vocabulary size is a ConfigError.
func (tm *TopicModel) Fit(counts *TermDocMatrix) (*TopicResult, error) {
	if tm.cfg.NTopics <= 0 {
		return nil, &ConfigError{Param: "topics.n_topics", Value: tm.cfg.NTopics, Detail: "must be positive"}
	}
	if tm.cfg.NTopics > len(counts.Terms) {
		return nil, &ConfigError{
			Param:  "topics.n_topics",
			Value:  tm.cfg.NTopics,
			Detail: fmt.Sprintf("exceeds vocabulary size %d", len(counts.Terms)),
		}
	}

	_, nDocs := counts.Counts.Dims()
	log.Printf("🔄 Fitting LDA: %d topics over %d documents, %d terms (%s)...",
		tm.cfg.NTopics, nDocs, len(counts.Terms), tm.cfg.LearningMethod)

	lda := nlp.NewLatentDirichletAllocation(tm.cfg.NTopics)
	lda.Iterations = tm.cfg.Iterations
	lda.Processes = 1
	lda.Rnd = rand.New(rand.NewSource(uint64(tm.seed)))
	if tm.cfg.LearningMethod == "batch" {
		lda.BatchSize = nDocs
	}

	docsOverTopics, err := lda.FitTransform(counts.Counts)
	if err != nil {
		return nil, fmt.Errorf("LDA fit failed: %w", err)
	}

	result := &TopicResult{
		NTopics:       tm.cfg.NTopics,
		Distributions: make([][]float64, nDocs),
		Dominant:      make([]int, nDocs),
	}
	for doc := 0; doc < nDocs; doc++ {
		weights := make([]float64, tm.cfg.NTopics)
		sum := 0.0
		for t := 0; t < tm.cfg.NTopics; t++ {
			w := docsOverTopics.At(t, doc)
			if w < 0 {
				w = 0
			}
			weights[t] = w
			sum += w
		}
		if sum == 0 {
			// Degenerate document (no in-vocabulary terms): uniform mixture.
			for t := range weights {
				weights[t] = 1 / float64(tm.cfg.NTopics)
			}
		} else {
			for t := range weights {
				weights[t] /= sum
			}
		}
		result.Distributions[doc] = weights

		dominant := 0
		for t := 1; t < tm.cfg.NTopics; t++ {
			if weights[t] > weights[dominant] {
				dominant = t
			}
		}
		result.Dominant[doc] = dominant
	}

	result.TopTerms = topTermsPerTopic(lda.Components(), counts.Terms, tm.cfg.TopTerms)
	for t, terms := range result.TopTerms {
		log.Printf("  Topic %d: %v", t, terms)
	}
	return result, nil
}

// topTermsPerTopic ranks each topic's terms by weight descending, ties
// broken by vocabulary order.
func topTermsPerTopic(components mat.Matrix, vocab []string, topN int) [][]string {
	topics, words := components.Dims()
	if topN > words {
		topN = words
	}

	out := make([][]string, topics)
	for t := 0; t < topics; t++ {
		order := make([]int, words)
		for w := range order {
			order[w] = w
		}
		sort.SliceStable(order, func(i, j int) bool {
			wi, wj := components.At(t, order[i]), components.At(t, order[j])
			if wi != wj {
				return wi > wj
			}
			return order[i] < order[j]
		})
		terms := make([]string, topN)
		for i := 0; i < topN; i++ {
			terms[i] = vocab[order[i]]
		}
		out[t] = terms
	}
	return out
}
