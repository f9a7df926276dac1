// Package memory is the similarity memory store: free-text records with a
// kind tag and a metadata bag, recalled by keyword scoring. Writes are
// best-effort from the pipeline's point of view; the caller decides whether a
// failure matters.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmribeiro/ambientd/internal/storage"
)

// Record is one stored memory with its recall score.
type Record struct {
	ID        int64          `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      string         `json:"kind"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Score     float64        `json:"score"`
}

// Service reads and writes the memories table.
type Service struct {
	db *storage.DB
}

// NewService returns a memory service over db.
func NewService(db *storage.DB) *Service {
	return &Service{db: db}
}

// Store persists one memory record.
func (s *Service) Store(ctx context.Context, userID, kind, text string, metadata map[string]any) error {
	metaJSON := []byte("{}")
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal memory metadata: %w", err)
		}
	}
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO memories (user_id, kind, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, kind, text, string(metaJSON), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

// Search returns up to limit records ranked by keyword overlap with the
// query, most relevant first, recency breaking ties.
func (s *Service) Search(ctx context.Context, userID, query string, kinds []string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []any
	args = append(args, userID)
	sqlQuery := "SELECT id, user_id, kind, content, metadata, created_at FROM memories WHERE user_id = ?"
	if len(kinds) > 0 {
		placeholders := strings.Repeat("?,", len(kinds))
		sqlQuery += " AND kind IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	for _, kw := range keywords {
		conditions = append(conditions, "LOWER(content) LIKE ?")
		args = append(args, "%"+kw+"%")
	}
	sqlQuery += " AND (" + strings.Join(conditions, " OR ") + ") ORDER BY created_at DESC LIMIT 200"

	rows, err := s.db.Conn().QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var r Record
		var metaJSON string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Kind, &r.Content, &metaJSON, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &r.Metadata)
		}
		r.Score = keywordScore(r.Content, keywords)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func keywordScore(content string, keywords []string) float64 {
	lower := strings.ToLower(content)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}
