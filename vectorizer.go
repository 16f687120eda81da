package kuchikomi

import (
	"log"
	"math"
	"sort"
	"strings"

	"github.com/james-bowman/sparse"
)

// FeatureMatrix is the immutable TF-IDF representation of a corpus.
// Rows follow the input review order, columns the fitted vocabulary.
// Every row with at least one non-zero weight is L2-normalized, and
// every row stores its columns in ascending order, so two fits of the
// same corpus produce byte-identical storage.
type FeatureMatrix struct {
	csr   *sparse.CSR
	terms []string
	rows  int
	cols  int
}

// Dims returns (documents, vocabulary terms).
func (m *FeatureMatrix) Dims() (int, int) { return m.rows, m.cols }

// Vocabulary returns the fitted terms; position = column index. The
// returned slice must not be mutated.
func (m *FeatureMatrix) Vocabulary() []string { return m.terms }

// NNZ returns the number of non-zero weights.
func (m *FeatureMatrix) NNZ() int { return m.csr.NNZ() }

// Sparsity returns the non-zero fraction of the matrix.
func (m *FeatureMatrix) Sparsity() float64 {
	if m.rows == 0 || m.cols == 0 {
		return 0
	}
	return float64(m.csr.NNZ()) / (float64(m.rows) * float64(m.cols))
}

// MemoryBytes estimates the footprint of the sparse storage: one float64
// and one column index per non-zero, plus row pointers.
func (m *FeatureMatrix) MemoryBytes() int64 {
	return int64(m.csr.NNZ())*16 + int64(m.rows+1)*8
}

// DoRowNonZero calls fn for every non-zero weight of row i.
func (m *FeatureMatrix) DoRowNonZero(i int, fn func(i, j int, v float64)) {
	m.csr.DoRowNonZero(i, fn)
}

// ScatterRow writes row i densely into dst, which must have length cols
// and be zeroed by the caller.
func (m *FeatureMatrix) ScatterRow(i int, dst []float64) {
	m.csr.DoRowNonZero(i, func(_, j int, v float64) {
		dst[j] = v
	})
}

// TermDocMatrix holds raw term counts oriented terms x documents, the
// layout the topic model consumes.
type TermDocMatrix struct {
	Counts *sparse.CSR
	Terms  []string
}

// TfidfVectorizer converts cleaned, token-joined review text into a
// weighted FeatureMatrix: sub-linear term frequency times smoothed
// inverse document frequency, rows L2-normalized. A fit is deterministic
// for a given corpus and configuration.
type TfidfVectorizer struct {
	cfg VectorizerConfig
}

func NewTfidfVectorizer(cfg VectorizerConfig) *TfidfVectorizer {
	return &TfidfVectorizer{cfg: cfg}
}

// FitTransform builds the vocabulary and the weighted matrix in one pass
// over the corpus. Terms below min_df or above the max_df fraction are
// excluded before weighting; if nothing survives, the fit fails with a
// DataError and no matrix is produced.
func (v *TfidfVectorizer) FitTransform(docs []string) (*FeatureMatrix, error) {
	log.Printf("🔄 Building TF-IDF vectors for %d documents...", len(docs))

	terms, index, df, err := buildVocabulary(docs, v.cfg)
	if err != nil {
		return nil, err
	}

	n := len(docs)
	idf := make([]float64, len(terms))
	for i, term := range terms {
		idf[i] = math.Log((1+float64(n))/(1+float64(df[term]))) + 1
	}

	// Rows are assembled with sorted column indices so each document
	// has exactly one storage layout regardless of map iteration order.
	ia := make([]int, 1, n+1)
	var ja []int
	var data []float64
	for _, doc := range docs {
		counts := make(map[int]int)
		for _, tok := range extractNgrams(strings.Fields(doc), v.cfg.NgramMin, v.cfg.NgramMax) {
			if col, ok := index[tok]; ok {
				counts[col]++
			}
		}
		if len(counts) == 0 {
			ia = append(ia, len(ja))
			continue
		}

		norm := 0.0
		cols := make([]int, 0, len(counts))
		weights := make(map[int]float64, len(counts))
		for col, c := range counts {
			w := (1 + math.Log(float64(c))) * idf[col]
			weights[col] = w
			norm += w * w
			cols = append(cols, col)
		}
		norm = math.Sqrt(norm)
		sort.Ints(cols)
		for _, col := range cols {
			ja = append(ja, col)
			data = append(data, weights[col]/norm)
		}
		ia = append(ia, len(ja))
	}

	m := &FeatureMatrix{
		csr:   sparse.NewCSR(n, len(terms), ia, ja, data),
		terms: terms,
		rows:  n,
		cols:  len(terms),
	}
	log.Printf("✅ TF-IDF matrix shape: (%d, %d), non-zero fraction %.4f, ~%d bytes",
		m.rows, m.cols, m.Sparsity(), m.MemoryBytes())
	return m, nil
}

// CountVectorizer builds the raw term-count matrix the topic model
// consumes, with the same vocabulary filtering rules as the TF-IDF
// vectorizer but no weighting.
type CountVectorizer struct {
	cfg VectorizerConfig
}

func NewCountVectorizer(cfg VectorizerConfig) *CountVectorizer {
	return &CountVectorizer{cfg: cfg}
}

// FitTransform returns counts oriented terms x documents.
func (v *CountVectorizer) FitTransform(docs []string) (*TermDocMatrix, error) {
	terms, index, _, err := buildVocabulary(docs, v.cfg)
	if err != nil {
		return nil, err
	}

	// Documents are visited in ascending column order, so appending per
	// term-row keeps every row's columns sorted.
	rowJA := make([][]int, len(terms))
	rowData := make([][]float64, len(terms))
	for col, doc := range docs {
		for _, tok := range extractNgrams(strings.Fields(doc), v.cfg.NgramMin, v.cfg.NgramMax) {
			row, ok := index[tok]
			if !ok {
				continue
			}
			if n := len(rowJA[row]); n > 0 && rowJA[row][n-1] == col {
				rowData[row][n-1]++
				continue
			}
			rowJA[row] = append(rowJA[row], col)
			rowData[row] = append(rowData[row], 1)
		}
	}

	ia := make([]int, 1, len(terms)+1)
	var ja []int
	var data []float64
	for r := range rowJA {
		ja = append(ja, rowJA[r]...)
		data = append(data, rowData[r]...)
		ia = append(ia, len(ja))
	}
	return &TermDocMatrix{Counts: sparse.NewCSR(len(terms), len(docs), ia, ja, data), Terms: terms}, nil
}

// buildVocabulary tokenizes the corpus, applies document-frequency
// filtering and the max_features cap, and returns the alphabetically
// ordered vocabulary with its index and document frequencies.
func buildVocabulary(docs []string, cfg VectorizerConfig) ([]string, map[string]int, map[string]int, error) {
	if len(docs) == 0 {
		return nil, nil, nil, &DataError{Stage: "vectorize", Docs: 0, Detail: "empty corpus"}
	}

	df := make(map[string]int)
	total := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range extractNgrams(strings.Fields(doc), cfg.NgramMin, cfg.NgramMax) {
			total[tok]++
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				df[tok]++
			}
		}
	}

	maxDF := cfg.MaxDF * float64(len(docs))
	kept := make([]string, 0, len(df))
	for term, d := range df {
		if d < cfg.MinDF || float64(d) > maxDF {
			continue
		}
		kept = append(kept, term)
	}
	if len(kept) == 0 {
		return nil, nil, nil, &DataError{
			Stage:  "vectorize",
			Docs:   len(docs),
			Detail: "vocabulary is empty after min_df/max_df filtering",
		}
	}

	// Cap at max_features keeping the most frequent terms, ties broken
	// alphabetically so the vocabulary stays deterministic.
	if len(kept) > cfg.MaxFeatures {
		sort.Slice(kept, func(i, j int) bool {
			if total[kept[i]] != total[kept[j]] {
				return total[kept[i]] > total[kept[j]]
			}
			return kept[i] < kept[j]
		})
		kept = kept[:cfg.MaxFeatures]
	}
	sort.Strings(kept)

	index := make(map[string]int, len(kept))
	for i, term := range kept {
		index[term] = i
	}
	return kept, index, df, nil
}

// extractNgrams turns a pre-cleaned token sequence into space-joined
// n-grams for every length in [min, max].
func extractNgrams(tokens []string, min, max int) []string {
	if min <= 1 && max <= 1 {
		return tokens
	}
	var out []string
	for n := min; n <= max; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			if n == 1 {
				out = append(out, tokens[i])
				continue
			}
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
