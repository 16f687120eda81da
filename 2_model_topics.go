package kuchikomi

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// ModelTopicsCmd fits the LDA topic model over the cleaned reviews and
// persists each review's topic distribution and dominant topic. Topics
// are computed independently of clustering; the two are combined only at
// record-assembly time.
func ModelTopicsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "model-topics",
		Short: "Discover latent topics and assign each review its dominant topic",
		Run: func(cmd *cobra.Command, args []string) {
			if err := modelAllTopics(env); err != nil {
				log.Printf("Failed to model topics: %v", err)
				return
			}
			log.Println("Topic modeling complete.")
		},
	}
}

func modelAllTopics(env *Env) error {
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
		return &DataError{Stage: "topics", Docs: 0, Detail: "no cleaned reviews in store"}
	}

	texts := make([]string, len(reviews))
	for i, r := range reviews {
		texts[i] = r.CleanJoined
	}

	// LDA consumes raw term counts, not TF-IDF weights.
	counts, err := NewCountVectorizer(env.Config.Vectorizer).FitTransform(texts)
	if err != nil {
		return err
	}

	result, err := NewTopicModel(env.Config.Topics, env.Config.RandomSeed).Fit(counts)
	if err != nil {
		return err
	}

	if err := writeJSONArtifact(env.ArtifactsDir, "topics.json", result); err != nil {
		return err
	}
	if err := saveTopics(db, reviews, result); err != nil {
		return fmt.Errorf("failed to save topic assignments: %w", err)
	}
	return nil
}
