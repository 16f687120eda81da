package kuchikomi

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// CandidateResult is the outcome of evaluating one candidate cluster
// count: a silhouette score in [-1, 1] and the wall-clock cost to obtain
// it, or a failure record. Failed candidates are excluded from selection
// but kept in the report.
type CandidateResult struct {
	K           int      `json:"k"`
	Score       float64  `json:"score"`
	CostSeconds float64  `json:"cost_seconds"`
	Strategy    Strategy `json:"strategy"`
	Failed      bool     `json:"failed"`
	Reason      string   `json:"reason,omitempty"`
}

// QualityReport maps every candidate k to its score and cost. It is
// built once per evaluation run and read-only afterwards.
type QualityReport struct {
	BestK      int               `json:"best_k"`
	BestScore  float64           `json:"best_score"`
	CorpusSize int               `json:"corpus_size"`
	SampleSize int               `json:"sample_size"`
	Strategy   Strategy          `json:"strategy"`
	Candidates []CandidateResult `json:"candidates"`
}

// Evaluator searches [k_min, k_max] for the cluster count with the best
// silhouette score without paying the full quadratic cost of exact
// evaluation on large corpora. All strategies are deterministic for a
// fixed seed: each candidate derives its RNG from seed+k, so even
// parallel scheduling cannot change a result.
type Evaluator struct {
	cfg  ClusteringConfig
	seed int64

	// timeoutFor overrides the per-candidate timeout; nil means the
	// configured timeout applies to every k.
	timeoutFor func(k int) time.Duration
}

func NewEvaluator(cfg ClusteringConfig, seed int64) *Evaluator {
	return &Evaluator{cfg: cfg, seed: seed}
}

// Evaluate scores every candidate k and returns the report with the
// winner. Ties are broken by preferring the smallest k. The run fails
// only if no candidate produces a score.
func (e *Evaluator) Evaluate(ctx context.Context, m *FeatureMatrix) (*QualityReport, error) {
	n, _ := m.Dims()
	if n == 0 {
		return nil, &DataError{Stage: "evaluate", Docs: 0, Detail: "empty feature matrix"}
	}

	base := e.cfg.Strategy
	if base == StrategyParallel {
		base = e.cfg.ParallelBase
	}

	// One sample per run, reused across all candidate k so comparisons
	// stay fair. A sample covering the corpus degrades to exact.
	evalRows := e.sampleRows(n)
	if evalRows == nil {
		if base != StrategyExact {
			log.Printf("sample_size >= corpus size (%d), falling back to exact evaluation", n)
		}
		base = StrategyExact
		evalRows = make([]int, n)
		for i := range evalRows {
			evalRows[i] = i
		}
	}

	block, err := denseBlock(m, evalRows, e.cfg.MaxDenseBytes)
	if err != nil {
		return nil, err
	}

	candidates := make([]int, 0, e.cfg.KMax-e.cfg.KMin+1)
	for k := e.cfg.KMin; k <= e.cfg.KMax; k++ {
		candidates = append(candidates, k)
	}
	log.Printf("🔍 Evaluating k from %d to %d (%s, %d of %d documents scored)...",
		e.cfg.KMin, e.cfg.KMax, base, len(evalRows), n)

	var results []CandidateResult
	if e.cfg.Strategy == StrategyParallel {
		results = e.evaluateParallel(ctx, m, block, evalRows, candidates, base)
	} else {
		for _, k := range candidates {
			results = append(results, e.evaluateCandidate(ctx, m, block, evalRows, k, base))
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].K < results[j].K })

	report := &QualityReport{
		CorpusSize: n,
		SampleSize: len(evalRows),
		Strategy:   e.cfg.Strategy,
		Candidates: results,
		BestScore:  math.Inf(-1),
	}
	for _, r := range results {
		if r.Failed {
			log.Printf("  k=%d → failed: %s", r.K, r.Reason)
			continue
		}
		log.Printf("  k=%d → silhouette=%.4f (%.2fs)", r.K, r.Score, r.CostSeconds)
		if r.Score > report.BestScore {
			report.BestScore = r.Score
			report.BestK = r.K
		}
	}
	if report.BestK == 0 {
		return nil, fmt.Errorf("all candidate cluster counts failed evaluation (k=%d..%d over %d documents)",
			e.cfg.KMin, e.cfg.KMax, n)
	}
	log.Printf("🎯 Selected optimal k=%d (silhouette=%.4f)", report.BestK, report.BestScore)
	return report, nil
}

// evaluateParallel distributes candidates over a fixed-size worker pool.
// Workers share only read-only data and return plain result values;
// candidates may complete in any order.
func (e *Evaluator) evaluateParallel(ctx context.Context, m *FeatureMatrix, block *mat.Dense, evalRows []int, candidates []int, base Strategy) []CandidateResult {
	jobs := make(chan int)
	out := make(chan CandidateResult, len(candidates))

	var wg sync.WaitGroup
	for w := 0; w < e.cfg.NJobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				out <- e.evaluateCandidate(ctx, m, block, evalRows, k, base)
			}
		}()
	}
	for _, k := range candidates {
		jobs <- k
	}
	close(jobs)
	wg.Wait()
	close(out)

	results := make([]CandidateResult, 0, len(candidates))
	for r := range out {
		results = append(results, r)
	}
	return results
}

// evaluateCandidate fits and scores one k. Timeouts and computational
// failures are recorded identically; a failure here never aborts the
// other candidates.
func (e *Evaluator) evaluateCandidate(ctx context.Context, m *FeatureMatrix, block *mat.Dense, evalRows []int, k int, base Strategy) CandidateResult {
	start := time.Now()
	result := CandidateResult{K: k, Strategy: base}

	timeout := e.cfg.CandidateTimeout()
	if e.timeoutFor != nil {
		timeout = e.timeoutFor(k)
	}
	if timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	score, err := e.fitAndScore(ctx, m, block, evalRows, k, base)
	result.CostSeconds = time.Since(start).Seconds()
	if err != nil {
		result.Failed = true
		result.Reason = err.Error()
		return result
	}
	result.Score = score
	return result
}

func (e *Evaluator) fitAndScore(ctx context.Context, m *FeatureMatrix, block *mat.Dense, evalRows []int, k int, base Strategy) (float64, error) {
	km := &KMeans{K: k, MaxIter: e.cfg.MaxIter, Tol: 1e-4, NInit: e.cfg.NInit}
	seed := e.seed + int64(k)

	evalLabels := make([]int, len(evalRows))
	switch base {
	case StrategyFastSampling:
		// Fit on the sample only; centroids can later label the full
		// corpus by nearest-centroid lookup.
		model, err := km.Fit(ctx, m, evalRows, seed)
		if err != nil {
			return 0, err
		}
		copy(evalLabels, model.Labels)
	default:
		// Exact and sampling both fit on the full matrix so centroids
		// reflect the whole corpus; they differ only in how many rows
		// the metric is computed on.
		model, err := km.Fit(ctx, m, nil, seed)
		if err != nil {
			return 0, err
		}
		for i, row := range evalRows {
			evalLabels[i] = model.Labels[row]
		}
	}

	populated := make(map[int]struct{}, k)
	for _, c := range evalLabels {
		populated[c] = struct{}{}
	}
	if len(populated) < 2 {
		return 0, fmt.Errorf("degenerate partition: %d populated clusters for k=%d", len(populated), k)
	}

	return silhouetteScore(ctx, block, evalLabels, k)
}

// sampleRows draws the fixed-size uniform sample without replacement,
// or returns nil when the sample would cover the corpus.
func (e *Evaluator) sampleRows(n int) []int {
	if e.cfg.Strategy == StrategyExact || e.cfg.SampleSize >= n {
		return nil
	}
	rng := rand.New(rand.NewSource(e.seed))
	perm := rng.Perm(n)[:e.cfg.SampleSize]
	sort.Ints(perm)
	return perm
}

// denseBlock materializes the evaluated rows densely so the quadratic
// silhouette pass runs over contiguous vectors. The block is shared
// read-only across all candidates.
func denseBlock(m *FeatureMatrix, rows []int, maxBytes int64) (*mat.Dense, error) {
	_, cols := m.Dims()
	need := int64(len(rows)) * int64(cols) * 8
	if need > maxBytes {
		return nil, &ResourceError{What: "silhouette row block", Need: need, Limit: maxBytes}
	}
	block := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		m.ScatterRow(row, block.RawRowView(i))
	}
	return block, nil
}

// silhouetteScore averages, over every evaluated document, the
// normalized difference between the mean cosine distance to its own
// cluster and the smallest mean distance to any other cluster. The
// result is in [-1, 1]; higher means more cohesive, better separated
// clusters. Cost grows quadratically with the number of evaluated rows,
// which is why sampling strategies exist.
func silhouetteScore(ctx context.Context, block *mat.Dense, labels []int, k int) (float64, error) {
	n, _ := block.Dims()
	counts := make([]int, k)
	for _, c := range labels {
		counts[c]++
	}

	total := 0.0
	sums := make([]float64, k)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for c := range sums {
			sums[c] = 0
		}
		ri := block.RawRowView(i)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sums[labels[j]] += 1 - cosineSimilarity(ri, block.RawRowView(j))
		}

		own := labels[i]
		if counts[own] <= 1 {
			continue // singleton: silhouette defined as 0
		}
		a := sums[own] / float64(counts[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			if mean := sums[c] / float64(counts[c]); mean < b {
				b = mean
			}
		}
		if max := math.Max(a, b); max > 0 {
			total += (b - a) / max
		}
	}
	return total / float64(n), nil
}
