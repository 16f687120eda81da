package kuchikomi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoGroupCorpus has two well-separated vocabularies: food praise and
// service complaints.
func twoGroupCorpus() []string {
	return []string{
		"ramen soup delicious rich",
		"ramen noodles delicious tasty",
		"soup broth rich tasty",
		"delicious noodles broth ramen",
		"soup tasty rich noodles",
		"service slow staff rude",
		"staff rude waiting slow",
		"service waiting rude terrible",
		"slow terrible service staff",
		"waiting staff terrible service",
	}
}

func fitTestMatrix(t *testing.T, docs []string) *FeatureMatrix {
	t.Helper()
	m, err := NewTfidfVectorizer(testVectorizerConfig()).FitTransform(docs)
	require.NoError(t, err)
	return m
}

func TestKMeansFit_LabelsInRange(t *testing.T) {
	m := fitTestMatrix(t, twoGroupCorpus())
	km := &KMeans{K: 2, MaxIter: 50, Tol: 1e-4, NInit: 3}

	model, err := km.Fit(context.Background(), m, nil, 42)
	require.NoError(t, err)

	rows, _ := m.Dims()
	require.Len(t, model.Labels, rows)
	for i, c := range model.Labels {
		assert.GreaterOrEqual(t, c, 0, "row %d", i)
		assert.Less(t, c, 2, "row %d", i)
	}
}

func TestKMeansFit_SeparatesObviousGroups(t *testing.T) {
	m := fitTestMatrix(t, twoGroupCorpus())
	km := &KMeans{K: 2, MaxIter: 50, Tol: 1e-4, NInit: 5}

	model, err := km.Fit(context.Background(), m, nil, 42)
	require.NoError(t, err)

	// Documents 0-4 share no tokens with documents 5-9, so a 2-way
	// partition must split exactly along that boundary.
	food := model.Labels[0]
	for i := 1; i < 5; i++ {
		assert.Equal(t, food, model.Labels[i], "row %d", i)
	}
	service := model.Labels[5]
	assert.NotEqual(t, food, service)
	for i := 6; i < 10; i++ {
		assert.Equal(t, service, model.Labels[i], "row %d", i)
	}
}

func TestKMeansFit_DeterministicForSeed(t *testing.T) {
	m := fitTestMatrix(t, twoGroupCorpus())
	km := &KMeans{K: 3, MaxIter: 50, Tol: 1e-4, NInit: 3}

	a, err := km.Fit(context.Background(), m, nil, 7)
	require.NoError(t, err)
	b, err := km.Fit(context.Background(), m, nil, 7)
	require.NoError(t, err)

	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Inertia, b.Inertia)
}

func TestKMeansFit_KExceedsDistinctDocs(t *testing.T) {
	docs := []string{
		"ramen soup",
		"ramen soup",
		"service slow",
	}
	m := fitTestMatrix(t, docs)
	km := &KMeans{K: 3, MaxIter: 50, Tol: 1e-4, NInit: 1}

	_, err := km.Fit(context.Background(), m, nil, 42)
	var dataErr *DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, "cluster", dataErr.Stage)
}

func TestCountDistinctRows_Duplicates(t *testing.T) {
	// Three texts duplicated twice each: the same text must hash to the
	// same row pattern on every fit.
	docs := []string{
		"ramen soup delicious",
		"service slow rude",
		"price expensive small",
		"ramen soup delicious",
		"service slow rude",
		"price expensive small",
	}
	for run := 0; run < 5; run++ {
		m := fitTestMatrix(t, docs)
		rows := []int{0, 1, 2, 3, 4, 5}
		assert.Equal(t, 3, countDistinctRows(m, rows), "run %d", run)
	}
}

func TestCountDistinctRows_AllDistinct(t *testing.T) {
	m := fitTestMatrix(t, twoGroupCorpus())
	rows := make([]int, len(twoGroupCorpus()))
	for i := range rows {
		rows[i] = i
	}
	assert.Equal(t, len(rows), countDistinctRows(m, rows))
}

func TestKMeansFit_CanceledContext(t *testing.T) {
	m := fitTestMatrix(t, twoGroupCorpus())
	km := &KMeans{K: 2, MaxIter: 50, Tol: 1e-4, NInit: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := km.Fit(ctx, m, nil, 42)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKMeansPredict_MatchesFitLabels(t *testing.T) {
	m := fitTestMatrix(t, twoGroupCorpus())
	km := &KMeans{K: 2, MaxIter: 50, Tol: 1e-4, NInit: 3}

	model, err := km.Fit(context.Background(), m, nil, 42)
	require.NoError(t, err)

	// Predicting over the same matrix assigns every row to the centroid
	// it was fitted into.
	assert.Equal(t, model.Labels, model.Predict(m))
}

func TestKMeansFit_SubsetRows(t *testing.T) {
	m := fitTestMatrix(t, twoGroupCorpus())
	km := &KMeans{K: 2, MaxIter: 50, Tol: 1e-4, NInit: 3}

	rows := []int{0, 1, 5, 6}
	model, err := km.Fit(context.Background(), m, rows, 42)
	require.NoError(t, err)
	require.Len(t, model.Labels, len(rows))
	assert.Equal(t, model.Labels[0], model.Labels[1])
	assert.Equal(t, model.Labels[2], model.Labels[3])
	assert.NotEqual(t, model.Labels[0], model.Labels[2])
}
