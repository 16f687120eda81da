package kuchikomi

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"
)

// vocabularyArtifact is the serialized vocabulary plus the weighting
// configuration that produced it, consumed by the reporting collaborator.
type vocabularyArtifact struct {
	Terms     []string         `json:"terms"`
	Weighting VectorizerConfig `json:"weighting"`
}

// ClusterReviewsCmd vectorizes the cleaned reviews, searches for the best
// cluster count, and assigns every review to a cluster.
func ClusterReviewsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "cluster-reviews",
		Short: "Vectorize reviews, select the best k, and assign clusters",
		Run: func(cmd *cobra.Command, args []string) {
			if err := clusterAllReviews(cmd.Context(), env); err != nil {
				log.Printf("Failed to cluster reviews: %v", err)
				return
			}
			log.Println("Review clustering complete.")
		},
	}
}

// clusterAllReviews runs vectorize → evaluate → final fit → persist.
func clusterAllReviews(ctx context.Context, env *Env) error {
	db, err := openReviewDB(env.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	reviews, err := loadCleanReviews(db)
	if err != nil {
		return fmt.Errorf("failed to load reviews: %w", err)
	}
	if len(reviews) == 0 {
		return &DataError{Stage: "cluster", Docs: 0, Detail: "no cleaned reviews in store"}
	}
	log.Printf("Loaded %d cleaned reviews for clustering", len(reviews))

	texts := make([]string, len(reviews))
	for i, r := range reviews {
		texts[i] = r.CleanJoined
	}

	matrix, err := NewTfidfVectorizer(env.Config.Vectorizer).FitTransform(texts)
	if err != nil {
		return err
	}

	report, err := NewEvaluator(env.Config.Clustering, env.Config.RandomSeed).Evaluate(ctx, matrix)
	if err != nil {
		return err
	}
	if err := writeJSONArtifact(env.ArtifactsDir, "quality_report.json", report); err != nil {
		return err
	}
	if err := writeJSONArtifact(env.ArtifactsDir, "vocabulary.json", vocabularyArtifact{
		Terms:     matrix.Vocabulary(),
		Weighting: env.Config.Vectorizer,
	}); err != nil {
		return err
	}

	// The winning k is re-fit on the full matrix so every review gets a
	// label from centroids that reflect the whole corpus.
	km := &KMeans{
		K:       report.BestK,
		MaxIter: env.Config.Clustering.MaxIter,
		Tol:     1e-4,
		NInit:   env.Config.Clustering.NInit,
	}
	model, err := km.Fit(ctx, matrix, nil, env.Config.RandomSeed)
	if err != nil {
		return err
	}
	if err := saveAssignments(db, reviews, model.Labels); err != nil {
		return fmt.Errorf("failed to save cluster assignments: %w", err)
	}

	sizes := make(map[int]int)
	for _, c := range model.Labels {
		sizes[c]++
	}
	ids := make([]int, 0, len(sizes))
	for c := range sizes {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	for _, c := range ids {
		log.Printf("  cluster %d: %d reviews", c, sizes[c])
	}
	return nil
}
