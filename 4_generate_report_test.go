package kuchikomi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMineTopNgrams_RanksByFrequency(t *testing.T) {
	docs := []string{"高い 遅い", "高い 残念", "高い"}
	got := mineTopNgrams(docs, 3)
	// 高い occurs three times; the rest tie at one and rank
	// alphabetically.
	assert.Equal(t, []string{"高い", "残念", "遅い"}, got)
}

func TestMineTopNgrams_IncludesBigrams(t *testing.T) {
	docs := []string{"コスパ 悪い", "コスパ 悪い"}
	got := mineTopNgrams(docs, 10)
	assert.Contains(t, got, "コスパ 悪い")
}

func TestMineTopNgrams_Empty(t *testing.T) {
	assert.Empty(t, mineTopNgrams(nil, 5))
}

func TestSummariseClusters(t *testing.T) {
	db := openTestDB(t)
	reviews := seedReviews(t, db, "ramen soup", "service slow", "ramen tasty", "service rude")
	require.NoError(t, saveAssignments(db, reviews, []int{0, 1, 0, 1}))
	require.NoError(t, saveSentiment(db, reviews, []SentimentRecord{
		{Score: 0, Label: "positive"},
		{Score: 1, Label: "negative"},
		{Score: 0, Label: "positive"},
		{Score: 1, Label: "negative"},
	}))

	summaries, err := summariseClusters(db, 2, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, 0, summaries[0].ID)
	assert.Equal(t, 2, summaries[0].Size)
	// Cluster 0 has no negative reviews: terms are mined from all of it.
	assert.Equal(t, []string{"ramen", "ramen soup"}, summaries[0].TopTerms)
	assert.Equal(t, []string{"raw ramen soup"}, summaries[0].Samples)

	assert.Equal(t, 1, summaries[1].ID)
	assert.Equal(t, 2, summaries[1].Size)
	// Cluster 1 mines from its negative reviews.
	assert.Equal(t, []string{"service", "rude"}, summaries[1].TopTerms)
}

func TestSummariseClusters_BeforeSentimentStage(t *testing.T) {
	db := openTestDB(t)
	reviews := seedReviews(t, db, "ramen soup", "ramen broth")
	require.NoError(t, saveAssignments(db, reviews, []int{0, 0}))

	// sentiment_label is still NULL; mining falls back to every review.
	summaries, err := summariseClusters(db, 1, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, []string{"ramen"}, summaries[0].TopTerms)
	assert.Len(t, summaries[0].Samples, 2)
}

func TestSummariseClusters_NoAssignments(t *testing.T) {
	db := openTestDB(t)
	seedReviews(t, db, "ramen soup")

	summaries, err := summariseClusters(db, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
