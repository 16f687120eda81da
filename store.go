package kuchikomi

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Review is one cleaned review loaded from the store. The external
// cleaning stage owns comment and clean_joined; this pipeline references
// them and never mutates them. Row order is ascending id and is stable
// across every derived artifact, so cluster id, topic distribution and
// sentiment can be joined by id without ambiguity.
type Review struct {
	ID          int64
	Comment     string
	CleanJoined string
}

// openReviewDB opens the SQLite store and ensures the schema. The result
// columns start NULL and are filled in by the pipeline stages.
func openReviewDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY,
		comment TEXT NOT NULL,
		clean_joined TEXT NOT NULL,
		cluster_id INTEGER,
		dominant_topic INTEGER,
		topic_distribution TEXT,
		sentiment_label TEXT,
		sentiment_score REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_cluster_id ON reviews(cluster_id);
	CREATE INDEX IF NOT EXISTS idx_dominant_topic ON reviews(dominant_topic);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		if cerr := db.Close(); cerr != nil {
			log.Printf("Failed to close database: %v", cerr)
		}
		return nil, err
	}
	return db, nil
}

// loadCleanReviews loads every review in id order.
func loadCleanReviews(db *sql.DB) ([]Review, error) {
	rows, err := db.Query(`SELECT id, comment, clean_joined FROM reviews ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Failed to close rows: %v", err)
		}
	}()

	var reviews []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.Comment, &r.CleanJoined); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// saveAssignments writes one cluster id per review in a single
// transaction, so a failed stage leaves no partial output.
func saveAssignments(db *sql.DB, reviews []Review, labels []int) error {
	if len(labels) != len(reviews) {
		return fmt.Errorf("label count %d does not match review count %d", len(labels), len(reviews))
	}
	return inTx(db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE reviews SET cluster_id = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, r := range reviews {
			if _, err := stmt.Exec(labels[i], r.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// saveTopics writes the dominant topic and the full distribution (JSON)
// per review, all-or-nothing.
func saveTopics(db *sql.DB, reviews []Review, result *TopicResult) error {
	if len(result.Dominant) != len(reviews) {
		return fmt.Errorf("topic count %d does not match review count %d", len(result.Dominant), len(reviews))
	}
	return inTx(db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE reviews SET dominant_topic = ?, topic_distribution = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, r := range reviews {
			dist, err := json.Marshal(result.Distributions[i])
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(result.Dominant[i], string(dist), r.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// saveSentiment writes score and label per review, all-or-nothing.
func saveSentiment(db *sql.DB, reviews []Review, records []SentimentRecord) error {
	if len(records) != len(reviews) {
		return fmt.Errorf("record count %d does not match review count %d", len(records), len(reviews))
	}
	return inTx(db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE reviews SET sentiment_score = ?, sentiment_label = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, r := range reviews {
			if _, err := stmt.Exec(records[i].Score, records[i].Label, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			log.Printf("Failed to roll back transaction: %v", rerr)
		}
		return err
	}
	return tx.Commit()
}

// writeJSONArtifact writes v to dir/name via a temp file and rename, so
// readers never observe a partially-written artifact.
func writeJSONArtifact(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
