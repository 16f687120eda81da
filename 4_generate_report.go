package kuchikomi

import (
	"bytes"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/report.html
var htmlTemplate string

//go:embed templates/styles.css
var cssStyles string

// GenerateReportCmd assembles the markdown and HTML analysis report from
// the persisted artifacts. It only reads finished per-review records and
// never recomputes anything.
func GenerateReportCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-report",
		Short: "Generate the analysis report in markdown and HTML formats",
		Run: func(cmd *cobra.Command, args []string) {
			report, err := generateAnalysisReport(env)
			if err != nil {
				log.Printf("Failed to generate report: %v", err)
				return
			}
			if err := os.WriteFile("report.md", []byte(report), 0644); err != nil {
				log.Printf("Failed to write report file: %v", err)
				return
			}
			log.Println("Report generated: report.md")

			htmlContent := generateCompleteHTML(report)
			if err := os.WriteFile("report.html", []byte(htmlContent), 0644); err != nil {
				log.Printf("Failed to write HTML file: %v", err)
				return
			}
			log.Println("HTML report generated: report.html")
		},
	}
}

func generateAnalysisReport(env *Env) (string, error) {
	db, err := openReviewDB(env.DBPath)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	var b strings.Builder
	b.WriteString("# Review Analysis Report\n\n")
	fmt.Fprintf(&b, "*Generated %s*\n\n", time.Now().Format("2 January 2006"))

	if err := writeClusterSection(&b, db, env.ArtifactsDir); err != nil {
		return "", err
	}
	if err := writeTopicSection(&b, env.ArtifactsDir); err != nil {
		return "", err
	}
	if err := writeSentimentSection(&b, db); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeClusterSection(b *strings.Builder, db *sql.DB, artifactsDir string) error {
	b.WriteString("## Clusters\n\n")

	var report QualityReport
	if ok, err := readJSONArtifact(artifactsDir, "quality_report.json", &report); err != nil {
		return err
	} else if ok {
		fmt.Fprintf(b, "Selected k=%d (silhouette %.4f, strategy %s, %d of %d documents scored).\n\n",
			report.BestK, report.BestScore, report.Strategy, report.SampleSize, report.CorpusSize)
		b.WriteString("| k | silhouette | cost (s) | status |\n|---|---|---|---|\n")
		for _, c := range report.Candidates {
			status := "ok"
			score := fmt.Sprintf("%.4f", c.Score)
			if c.Failed {
				status = "failed: " + c.Reason
				score = "-"
			}
			fmt.Fprintf(b, "| %d | %s | %.2f | %s |\n", c.K, score, c.CostSeconds, status)
		}
		b.WriteString("\n")
	}

	summaries, err := summariseClusters(db, 5, 2)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		fmt.Fprintf(b, "### Cluster %d (%d reviews)\n\n", s.ID, s.Size)
		if len(s.TopTerms) > 0 {
			fmt.Fprintf(b, "Frequent terms: %s\n\n", strings.Join(s.TopTerms, ", "))
		}
		for _, sample := range s.Samples {
			fmt.Fprintf(b, "> %s\n\n", sample)
		}
	}
	return nil
}

// clusterSummary describes one cluster for the report: its size, the
// top n-grams mined from its reviews, and a few sample comments.
type clusterSummary struct {
	ID       int
	Size     int
	TopTerms []string
	Samples  []string
}

// summariseClusters mines per-cluster top terms and sample comments.
// Negative reviews drive the term mining because complaint vocabulary
// is what distinguishes clusters for the reader; a cluster with no
// negative reviews (or scored before the sentiment stage ran) falls
// back to all of its reviews.
func summariseClusters(db *sql.DB, topN, sampleN int) ([]clusterSummary, error) {
	rows, err := db.Query(`SELECT cluster_id, comment, clean_joined, sentiment_label FROM reviews WHERE cluster_id IS NOT NULL ORDER BY cluster_id, id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Failed to close rows: %v", err)
		}
	}()

	var summaries []clusterSummary
	var cur *clusterSummary
	var negDocs, allDocs []string
	flush := func() {
		if cur == nil {
			return
		}
		docs := negDocs
		if len(docs) == 0 {
			docs = allDocs
		}
		cur.TopTerms = mineTopNgrams(docs, topN)
		summaries = append(summaries, *cur)
	}

	for rows.Next() {
		var id int
		var comment, clean string
		var label sql.NullString
		if err := rows.Scan(&id, &comment, &clean, &label); err != nil {
			return nil, err
		}
		if cur == nil || cur.ID != id {
			flush()
			cur = &clusterSummary{ID: id}
			negDocs, allDocs = nil, nil
		}
		cur.Size++
		allDocs = append(allDocs, clean)
		if label.Valid && label.String == "negative" {
			negDocs = append(negDocs, clean)
		}
		if len(cur.Samples) < sampleN {
			cur.Samples = append(cur.Samples, comment)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	flush()
	return summaries, nil
}

// mineTopNgrams ranks unigrams and bigrams across the given cleaned
// documents by occurrence count, ties broken alphabetically.
func mineTopNgrams(docs []string, topN int) []string {
	counts := make(map[string]int)
	for _, doc := range docs {
		for _, g := range extractNgrams(strings.Fields(doc), 1, 2) {
			counts[g]++
		}
	}
	terms := make([]string, 0, len(counts))
	for g := range counts {
		terms = append(terms, g)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > topN {
		terms = terms[:topN]
	}
	return terms
}

func writeTopicSection(b *strings.Builder, artifactsDir string) error {
	var topics TopicResult
	ok, err := readJSONArtifact(artifactsDir, "topics.json", &topics)
	if err != nil || !ok {
		return err
	}

	b.WriteString("## Topics\n\n")
	for t, terms := range topics.TopTerms {
		fmt.Fprintf(b, "- **Topic %d**: %s\n", t, strings.Join(terms, ", "))
	}
	b.WriteString("\n")
	return nil
}

func writeSentimentSection(b *strings.Builder, db *sql.DB) error {
	rows, err := db.Query(`SELECT sentiment_label, COUNT(*) FROM reviews WHERE sentiment_label IS NOT NULL GROUP BY sentiment_label ORDER BY sentiment_label`)
	if err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Failed to close rows: %v", err)
		}
	}()

	wrote := false
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return err
		}
		if !wrote {
			b.WriteString("## Sentiment\n\n")
			wrote = true
		}
		fmt.Fprintf(b, "- %s: %d reviews\n", label, count)
	}
	if wrote {
		b.WriteString("\n")
	}
	return rows.Err()
}

// readJSONArtifact loads dir/name into v; a missing artifact is not an
// error, the section is simply skipped.
func readJSONArtifact(dir, name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse artifact %s: %w", name, err)
	}
	return true, nil
}

// generateCompleteHTML generates a complete HTML document with embedded CSS
func generateCompleteHTML(markdownContent string) string {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Linkify,
			extension.Strikethrough,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			html.WithUnsafe(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdownContent), &buf); err != nil {
		log.Printf("Failed to convert markdown to HTML: %v", err)
		return ""
	}

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		log.Printf("Failed to parse HTML template: %v", err)
		return ""
	}

	data := struct {
		Title string
		Date  string
		Body  template.HTML
		CSS   template.CSS
	}{
		Title: "Review Analysis Report",
		Date:  time.Now().Format("2 January 2006"),
		Body:  template.HTML(buf.String()),
		CSS:   template.CSS(cssStyles),
	}

	var result bytes.Buffer
	if err := tmpl.Execute(&result, data); err != nil {
		log.Printf("Failed to execute template: %v", err)
		return ""
	}
	return result.String()
}
