package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/Kevin6098/kuchikomi"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	configPath := getenv("KUCHIKOMI_CONFIG", "kuchikomi.toml")
	cfg, err := kuchikomi.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	env := &kuchikomi.Env{
		Config:       cfg,
		DBPath:       getenv("KUCHIKOMI_DB", "reviews.db"),
		ArtifactsDir: getenv("KUCHIKOMI_ARTIFACTS", "artifacts"),
	}

	clusterCmd := kuchikomi.ClusterReviewsCmd(env)
	topicsCmd := kuchikomi.ModelTopicsCmd(env)
	sentimentCmd := kuchikomi.ScoreSentimentCmd(env)
	reportCmd := kuchikomi.GenerateReportCmd(env)

	rootCmd := &cobra.Command{
		Use:   "kuchikomi",
		Short: "Review corpus clustering, topic and sentiment analysis CLI",
	}

	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(sentimentCmd)
	rootCmd.AddCommand(reportCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: cluster-reviews -> model-topics -> score-sentiment -> generate-report",
		Run: func(cmd *cobra.Command, args []string) {
			log.Println("Running full pipeline...")
			clusterCmd.Run(cmd, args)
			topicsCmd.Run(cmd, args)
			sentimentCmd.Run(cmd, args)
			reportCmd.Run(cmd, args)
			log.Println("Pipeline complete.")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Clean generated artifacts and reports",
		Run: func(cmd *cobra.Command, args []string) {
			files, err := os.ReadDir(env.ArtifactsDir)
			if err != nil {
				if !os.IsNotExist(err) {
					log.Printf("Failed to read %s: %v", env.ArtifactsDir, err)
				}
			} else {
				for _, file := range files {
					if file.IsDir() {
						continue
					}
					if err := os.Remove(filepath.Join(env.ArtifactsDir, file.Name())); err != nil {
						log.Printf("Failed to remove %s: %v", file.Name(), err)
					}
				}
			}

			for _, name := range []string{"report.md", "report.html"} {
				if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
					log.Printf("Failed to remove %s: %v", name, err)
				}
			}

			log.Println("Cleaned artifacts directory and reports.")
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
