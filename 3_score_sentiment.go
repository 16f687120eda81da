package kuchikomi

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// ScoreSentimentCmd applies the lexicon sentiment rule to every review.
func ScoreSentimentCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "score-sentiment",
		Short: "Score every review with the negative-keyword lexicon",
		Run: func(cmd *cobra.Command, args []string) {
			if err := scoreAllSentiment(env); err != nil {
				log.Printf("Failed to score sentiment: %v", err)
				return
			}
			log.Println("Sentiment scoring complete.")
		},
	}
}

func scoreAllSentiment(env *Env) error {
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
		return &DataError{Stage: "sentiment", Docs: 0, Detail: "no cleaned reviews in store"}
	}

	scorer := NewSentimentScorer(NegativeLexicon, env.Config.Sentiment.Threshold)
	records := make([]SentimentRecord, len(reviews))
	negatives := 0
	for i, r := range reviews {
		records[i] = scorer.ScoreText(r.CleanJoined)
		if records[i].Label == "negative" {
			negatives++
		}
	}
	log.Printf("Scored %d reviews: %d negative, %d positive", len(reviews), negatives, len(reviews)-negatives)

	if err := saveSentiment(db, reviews, records); err != nil {
		return fmt.Errorf("failed to save sentiment records: %w", err)
	}
	return nil
}
