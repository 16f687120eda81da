package kuchikomi

import (
	"context"
	"hash/fnv"
	"log"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// KMeans is a centroid-based partitioner over a FeatureMatrix using
// cosine distance. Fits are reproducible for a fixed seed: the best of
// NInit independent k-means++ initializations is kept, judged by
// within-cluster dispersion.
type KMeans struct {
	K       int
	MaxIter int
	Tol     float64
	NInit   int
}

// KMeansModel is a fitted partition: centroids plus one cluster id in
// [0, K) per fitted row. Both are written once at fit time and immutable
// afterwards.
type KMeansModel struct {
	K         int
	Centroids *mat.Dense // K x terms
	Labels    []int      // one per fitted row, in fit order
	Inertia   float64
}

// Fit partitions the given rows of m. A nil rows slice means the whole
// matrix. Fails with a DataError if K exceeds the number of distinct
// documents among the fitted rows.
func (km *KMeans) Fit(ctx context.Context, m *FeatureMatrix, rows []int, seed int64) (*KMeansModel, error) {
	if rows == nil {
		n, _ := m.Dims()
		rows = make([]int, n)
		for i := range rows {
			rows[i] = i
		}
	}
	if distinct := countDistinctRows(m, rows); km.K > distinct {
		return nil, &DataError{
			Stage:  "cluster",
			Docs:   len(rows),
			Detail: "k exceeds the number of distinct documents",
		}
	}

	rng := rand.New(rand.NewSource(seed))
	var best *KMeansModel
	for run := 0; run < km.NInit; run++ {
		model, err := km.fitOnce(ctx, m, rows, rng)
		if err != nil {
			return nil, err
		}
		if best == nil || model.Inertia < best.Inertia {
			best = model
		}
	}
	return best, nil
}

func (km *KMeans) fitOnce(ctx context.Context, m *FeatureMatrix, rows []int, rng *rand.Rand) (*KMeansModel, error) {
	_, dims := m.Dims()
	centroids := km.initCentroids(m, rows, rng)

	labels := make([]int, len(rows))
	for i := range labels {
		labels[i] = -1
	}

	norms := make([]float64, km.K)
	for iter := 0; iter < km.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		centroidNorms(centroids, norms)

		changed := false
		for i, row := range rows {
			c := nearestCentroid(m, row, centroids, norms)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		next := mat.NewDense(km.K, dims, nil)
		counts := make([]int, km.K)
		for i, row := range rows {
			c := labels[i]
			dst := next.RawRowView(c)
			m.DoRowNonZero(row, func(_, j int, v float64) {
				dst[j] += v
			})
			counts[c]++
		}
		for c := 0; c < km.K; c++ {
			if counts[c] == 0 {
				// Empty cluster keeps its previous centroid.
				next.SetRow(c, centroids.RawRowView(c))
				continue
			}
			dst := next.RawRowView(c)
			for j := range dst {
				dst[j] /= float64(counts[c])
			}
		}

		change := centroidChange(centroids, next)
		centroids = next
		if change < km.Tol {
			break
		}
	}

	centroidNorms(centroids, norms)
	inertia := 0.0
	for i, row := range rows {
		inertia += 1 - rowCentroidSimilarity(m, row, centroids, labels[i], norms[labels[i]])
	}

	return &KMeansModel{K: km.K, Centroids: centroids, Labels: labels, Inertia: inertia}, nil
}

// initCentroids seeds K centroids with k-means++: the first is uniform,
// the rest are drawn with probability proportional to the squared cosine
// distance to the nearest already-chosen centroid.
func (km *KMeans) initCentroids(m *FeatureMatrix, rows []int, rng *rand.Rand) *mat.Dense {
	_, dims := m.Dims()
	centroids := mat.NewDense(km.K, dims, nil)

	first := rows[rng.Intn(len(rows))]
	m.ScatterRow(first, centroids.RawRowView(0))

	norms := make([]float64, km.K)
	dists := make([]float64, len(rows))
	for c := 1; c < km.K; c++ {
		centroidNorms(centroids, norms)

		total := 0.0
		for i, row := range rows {
			minDist := math.Inf(1)
			for p := 0; p < c; p++ {
				d := 1 - rowCentroidSimilarity(m, row, centroids, p, norms[p])
				if d < minDist {
					minDist = d
				}
			}
			dists[i] = minDist * minDist
			total += dists[i]
		}

		if total == 0 {
			m.ScatterRow(rows[rng.Intn(len(rows))], centroids.RawRowView(c))
			continue
		}
		target := rng.Float64() * total
		cum := 0.0
		for i, d := range dists {
			cum += d
			if cum >= target {
				m.ScatterRow(rows[i], centroids.RawRowView(c))
				break
			}
		}
	}
	return centroids
}

// Predict assigns every row of m to its nearest centroid. This is the
// linear-cost path that labels a full corpus from a sample-fitted model.
func (model *KMeansModel) Predict(m *FeatureMatrix) []int {
	n, _ := m.Dims()
	norms := make([]float64, model.K)
	centroidNorms(model.Centroids, norms)

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = nearestCentroid(m, i, model.Centroids, norms)
	}
	return labels
}

func nearestCentroid(m *FeatureMatrix, row int, centroids *mat.Dense, norms []float64) int {
	k, _ := centroids.Dims()
	best := 0
	minDist := math.Inf(1)
	for c := 0; c < k; c++ {
		d := 1 - rowCentroidSimilarity(m, row, centroids, c, norms[c])
		if d < minDist {
			minDist = d
			best = c
		}
	}
	return best
}

// rowCentroidSimilarity computes the cosine similarity between a sparse
// row (already L2-normalized by the vectorizer) and a dense centroid.
func rowCentroidSimilarity(m *FeatureMatrix, row int, centroids *mat.Dense, c int, norm float64) float64 {
	if norm == 0 {
		return 0
	}
	centroid := centroids.RawRowView(c)
	dot := 0.0
	m.DoRowNonZero(row, func(_, j int, v float64) {
		dot += v * centroid[j]
	})
	return dot / norm
}

func centroidNorms(centroids *mat.Dense, out []float64) {
	k, _ := centroids.Dims()
	for c := 0; c < k; c++ {
		row := centroids.RawRowView(c)
		s := 0.0
		for _, v := range row {
			s += v * v
		}
		out[c] = math.Sqrt(s)
	}
}

// centroidChange measures the mean cosine distance between old and new
// centroids, the convergence criterion.
func centroidChange(old, next *mat.Dense) float64 {
	k, _ := old.Dims()
	total := 0.0
	for c := 0; c < k; c++ {
		total += 1 - cosineSimilarity(old.RawRowView(c), next.RawRowView(c))
	}
	return total / float64(k)
}

// cosineSimilarity calculates cosine similarity between two dense vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	dot, normA, normB := 0.0, 0.0, 0.0
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// countDistinctRows hashes each row's sparse pattern to count distinct
// documents without pairwise comparison.
func countDistinctRows(m *FeatureMatrix, rows []int) int {
	seen := make(map[uint64]struct{}, len(rows))
	var buf [16]byte
	for _, row := range rows {
		h := fnv.New64a()
		m.DoRowNonZero(row, func(_, j int, v float64) {
			bits := math.Float64bits(v)
			for b := 0; b < 8; b++ {
				buf[b] = byte(j >> (8 * b))
				buf[8+b] = byte(bits >> (8 * b))
			}
			h.Write(buf[:])
		})
		seen[h.Sum64()] = struct{}{}
	}
	if len(seen) < len(rows) {
		log.Printf("corpus has %d distinct documents among %d rows", len(seen), len(rows))
	}
	return len(seen)
}
