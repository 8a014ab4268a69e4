package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ippeo/consultd/internal/domain"
)

const faqColumns = `id, question, answer, procedure_name, category,
	youtube_title, youtube_video_id, youtube_url`

// SimilaritySearch returns FAQ passages whose cosine similarity to embedding
// is at least threshold, most similar first. An empty category searches all.
func (s *Store) SimilaritySearch(ctx context.Context, embedding []float32, category string, threshold float64, limit int) ([]domain.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+faqColumns+`, 1 - (embedding <=> $1::vector) AS similarity
		FROM faq_vectors
		WHERE ($2 = '' OR category = $2)
		  AND 1 - (embedding <=> $1::vector) >= $3
		ORDER BY embedding <=> $1::vector
		LIMIT $4`,
		pgVector(embedding), category, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := scanFAQ(rows, &c, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FetchByIDs returns the FAQ rows with the given ids, in no particular order.
func (s *Store) FetchByIDs(ctx context.Context, ids []string) ([]domain.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+faqColumns+` FROM faq_vectors WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch faq by ids: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := scanFAQ(rows, &c); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanFAQ(rows pgx.Rows, c *domain.Candidate, extra ...any) error {
	var title, videoID, url *string
	dest := []any{&c.ID, &c.Question, &c.Answer, &c.ProcedureName, &c.Category, &title, &videoID, &url}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	c.YouTubeTitle = deref(title)
	c.YouTubeVideoID = deref(videoID)
	c.YouTubeURL = deref(url)
	return nil
}
