package kuchikomi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopicsConfig() TopicsConfig {
	return TopicsConfig{
		NTopics:        2,
		LearningMethod: "batch",
		Iterations:     20,
		TopTerms:       3,
	}
}

func testTermDocMatrix(t *testing.T) *TermDocMatrix {
	t.Helper()
	td, err := NewCountVectorizer(testVectorizerConfig()).FitTransform(twoGroupCorpus())
	require.NoError(t, err)
	return td
}

func TestTopicModelFit_DistributionsSumToOne(t *testing.T) {
	td := testTermDocMatrix(t)
	result, err := NewTopicModel(testTopicsConfig(), 42).Fit(td)
	require.NoError(t, err)

	require.Len(t, result.Distributions, len(twoGroupCorpus()))
	for doc, weights := range result.Distributions {
		require.Len(t, weights, 2, "doc %d", doc)
		sum := 0.0
		for _, w := range weights {
			assert.GreaterOrEqual(t, w, 0.0, "doc %d", doc)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "doc %d", doc)
	}
}

func TestTopicModelFit_DominantInRange(t *testing.T) {
	td := testTermDocMatrix(t)
	result, err := NewTopicModel(testTopicsConfig(), 42).Fit(td)
	require.NoError(t, err)

	require.Len(t, result.Dominant, len(twoGroupCorpus()))
	for doc, topic := range result.Dominant {
		assert.GreaterOrEqual(t, topic, 0, "doc %d", doc)
		assert.Less(t, topic, 2, "doc %d", doc)
	}
}

func TestTopicModelFit_TopTerms(t *testing.T) {
	td := testTermDocMatrix(t)
	result, err := NewTopicModel(testTopicsConfig(), 42).Fit(td)
	require.NoError(t, err)

	require.Len(t, result.TopTerms, 2)
	for topic, terms := range result.TopTerms {
		assert.Len(t, terms, 3, "topic %d", topic)
		for _, term := range terms {
			assert.Contains(t, td.Terms, term, "topic %d", topic)
		}
	}
}

func TestTopicModelFit_Deterministic(t *testing.T) {
	td := testTermDocMatrix(t)

	a, err := NewTopicModel(testTopicsConfig(), 42).Fit(td)
	require.NoError(t, err)
	b, err := NewTopicModel(testTopicsConfig(), 42).Fit(td)
	require.NoError(t, err)

	assert.Equal(t, a.Dominant, b.Dominant)
	assert.Equal(t, a.TopTerms, b.TopTerms)
}

func TestTopicModelFit_ZeroTopics(t *testing.T) {
	cfg := testTopicsConfig()
	cfg.NTopics = 0
	_, err := NewTopicModel(cfg, 42).Fit(testTermDocMatrix(t))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "topics.n_topics", cfgErr.Param)
}

func TestTopicModelFit_MoreTopicsThanTerms(t *testing.T) {
	td := testTermDocMatrix(t)
	cfg := testTopicsConfig()
	cfg.NTopics = len(td.Terms) + 1
	_, err := NewTopicModel(cfg, 42).Fit(td)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "topics.n_topics", cfgErr.Param)
}

func TestTopTermsPerTopic_CapsAtVocabulary(t *testing.T) {
	td, err := NewCountVectorizer(testVectorizerConfig()).FitTransform([]string{
		"ramen soup",
		"soup broth",
	})
	require.NoError(t, err)

	cfg := testTopicsConfig()
	cfg.TopTerms = 100
	result, err := NewTopicModel(cfg, 42).Fit(td)
	require.NoError(t, err)

	for topic, terms := range result.TopTerms {
		assert.Len(t, terms, len(td.Terms), "topic %d", topic)
	}
}
