package kuchikomi

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openReviewDB(filepath.Join(t.TempDir(), "reviews.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedReviews(t *testing.T, db *sql.DB, cleaned ...string) []Review {
	t.Helper()
	for i, c := range cleaned {
		_, err := db.Exec(`INSERT INTO reviews (id, comment, clean_joined) VALUES (?, ?, ?)`,
			i+1, "raw "+c, c)
		require.NoError(t, err)
	}
	reviews, err := loadCleanReviews(db)
	require.NoError(t, err)
	require.Len(t, reviews, len(cleaned))
	return reviews
}

func TestLoadCleanReviews_OrderedByID(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO reviews (id, comment, clean_joined) VALUES (3, 'c', 'three'), (1, 'a', 'one'), (2, 'b', 'two')`)
	require.NoError(t, err)

	reviews, err := loadCleanReviews(db)
	require.NoError(t, err)
	require.Len(t, reviews, 3)
	assert.Equal(t, []string{"one", "two", "three"},
		[]string{reviews[0].CleanJoined, reviews[1].CleanJoined, reviews[2].CleanJoined})
}

func TestSaveAssignments_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	reviews := seedReviews(t, db, "ramen soup", "service slow", "ramen tasty")

	require.NoError(t, saveAssignments(db, reviews, []int{0, 1, 0}))

	var c0, c1 int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reviews WHERE cluster_id = 0`).Scan(&c0))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reviews WHERE cluster_id = 1`).Scan(&c1))
	assert.Equal(t, 2, c0)
	assert.Equal(t, 1, c1)
}

func TestSaveAssignments_LengthMismatch(t *testing.T) {
	db := openTestDB(t)
	reviews := seedReviews(t, db, "ramen soup", "service slow")

	err := saveAssignments(db, reviews, []int{0})
	require.Error(t, err)

	// Nothing was written.
	var assigned int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reviews WHERE cluster_id IS NOT NULL`).Scan(&assigned))
	assert.Equal(t, 0, assigned)
}

func TestSaveTopics_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	reviews := seedReviews(t, db, "ramen soup", "service slow")

	result := &TopicResult{
		NTopics:       2,
		Distributions: [][]float64{{0.8, 0.2}, {0.1, 0.9}},
		Dominant:      []int{0, 1},
	}
	require.NoError(t, saveTopics(db, reviews, result))

	var dominant int
	var distJSON string
	require.NoError(t, db.QueryRow(`SELECT dominant_topic, topic_distribution FROM reviews WHERE id = 1`).Scan(&dominant, &distJSON))
	assert.Equal(t, 0, dominant)

	var dist []float64
	require.NoError(t, json.Unmarshal([]byte(distJSON), &dist))
	assert.Equal(t, []float64{0.8, 0.2}, dist)
}

func TestSaveSentiment_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	reviews := seedReviews(t, db, "最悪", "美味しい")

	records := []SentimentRecord{
		{Score: 1, Label: "negative"},
		{Score: 0, Label: "positive"},
	}
	require.NoError(t, saveSentiment(db, reviews, records))

	var label string
	var score float64
	require.NoError(t, db.QueryRow(`SELECT sentiment_label, sentiment_score FROM reviews WHERE id = 1`).Scan(&label, &score))
	assert.Equal(t, "negative", label)
	assert.Equal(t, 1.0, score)
}

func TestWriteJSONArtifact(t *testing.T) {
	dir := t.TempDir()
	report := QualityReport{BestK: 3, BestScore: 0.42, CorpusSize: 10, SampleSize: 10, Strategy: StrategyExact}
	require.NoError(t, writeJSONArtifact(dir, "quality_report.json", report))

	data, err := os.ReadFile(filepath.Join(dir, "quality_report.json"))
	require.NoError(t, err)

	var got QualityReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, report.BestK, got.BestK)
	assert.Equal(t, report.BestScore, got.BestScore)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteJSONArtifact_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	require.NoError(t, writeJSONArtifact(dir, "topics.json", map[string]int{"n_topics": 8}))

	_, err := os.Stat(filepath.Join(dir, "topics.json"))
	assert.NoError(t, err)
}
