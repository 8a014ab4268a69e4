package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/llm"
)

const (
	DefaultThreshold = 0.65
	DefaultLimit     = 8

	pubmedHost = "pubmed.ncbi.nlm.nih.gov"
)

// Searcher is the vector store.
type Searcher interface {
	SimilaritySearch(ctx context.Context, embedding []float32, category string, threshold float64, limit int) ([]domain.Candidate, error)
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Candidate, error)
}

// Query is one retrieval request. Focus is typically the latest customer
// utterance; Keywords are joined into a context query. A nil Threshold uses
// DefaultThreshold; an explicit 0 disables the similarity floor.
type Query struct {
	Keywords  []string
	Category  string
	Focus     string
	Threshold *float64
	Limit     int
}

type Retriever struct {
	embedder llm.Embedder
	searcher Searcher
	logger   *slog.Logger
}

func New(embedder llm.Embedder, searcher Searcher, logger *slog.Logger) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher, logger: logger}
}

// Retrieve embeds the focus and context queries concurrently, searches with
// each embedding concurrently, and merges the results. Focus results take
// precedence on duplicate ids. Errors from the embedder or store are
// returned; callers decide whether to continue without context.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]domain.Candidate, error) {
	threshold := DefaultThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	var queries []string
	if focus := strings.TrimSpace(q.Focus); focus != "" {
		queries = append(queries, focus)
	}
	if ctxText := strings.TrimSpace(strings.Join(q.Keywords, " ")); ctxText != "" {
		queries = append(queries, ctxText)
	}
	if len(queries) == 0 {
		return []domain.Candidate{}, nil
	}

	embeddings := make([][]float32, len(queries))
	g, gCtx := errgroup.WithContext(ctx)
	for i, text := range queries {
		i, text := i, text
		g.Go(func() error {
			vec, err := r.embedder.EmbedQuery(gCtx, text)
			if err != nil {
				return fmt.Errorf("embed query %d: %w", i, err)
			}
			embeddings[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resultSets := make([][]domain.Candidate, len(queries))
	g, gCtx = errgroup.WithContext(ctx)
	for i, vec := range embeddings {
		i, vec := i, vec
		g.Go(func() error {
			rows, err := r.searcher.SimilaritySearch(gCtx, vec, q.Category, threshold, q.Limit)
			if err != nil {
				return fmt.Errorf("similarity search %d: %w", i, err)
			}
			resultSets[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(q.Limit, resultSets...)
	if len(merged) > 0 {
		if err := r.enrich(ctx, merged); err != nil {
			return nil, err
		}
	}
	for i := range merged {
		TagProvenance(&merged[i])
	}

	r.logger.Info("rag retrieval complete",
		"category", q.Category,
		"queries", len(queries),
		"results", len(merged),
	)
	return merged, nil
}

// Merge concatenates result sets in priority order, keeps the first-seen
// instance of each id (including its similarity), stable-sorts by similarity
// descending and truncates to limit.
func Merge(limit int, sets ...[]domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{})
	merged := make([]domain.Candidate, 0)
	for _, set := range sets {
		for _, c := range set {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if limit >= 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func (r *Retriever) enrich(ctx context.Context, cands []domain.Candidate) error {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	rows, err := r.searcher.FetchByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch candidate metadata: %w", err)
	}

	byID := make(map[string]domain.Candidate, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	for i := range cands {
		row, ok := byID[cands[i].ID]
		if !ok {
			continue
		}
		if cands[i].YouTubeTitle == "" {
			cands[i].YouTubeTitle = row.YouTubeTitle
		}
		if cands[i].YouTubeVideoID == "" {
			cands[i].YouTubeVideoID = row.YouTubeVideoID
		}
		if cands[i].YouTubeURL == "" {
			cands[i].YouTubeURL = row.YouTubeURL
		}
	}
	return nil
}

// TagProvenance classifies a candidate by its source URL. PubMed records
// reuse the title and external id columns for paper title and PMID.
func TagProvenance(c *domain.Candidate) {
	if strings.Contains(c.YouTubeURL, pubmedHost) {
		c.SourceType = domain.SourcePubMed
		c.PaperTitle = c.YouTubeTitle
		c.PMID = c.YouTubeVideoID
		return
	}
	c.SourceType = domain.SourceYouTube
}
