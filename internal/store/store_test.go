package store

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestPgVector(t *testing.T) {
	assert.Equal(t, "[0.1,-2,3.5]", pgVector([]float32{0.1, -2, 3.5}))
	assert.Equal(t, "[]", pgVector(nil))
}

func TestNewAccessToken(t *testing.T) {
	hex := regexp.MustCompile(`^[0-9a-f]{32}$`)
	a, b := newAccessToken(), newAccessToken()
	assert.Regexp(t, hex, a)
	assert.Regexp(t, hex, b)
	assert.NotEqual(t, a, b)
}

func TestNotFound(t *testing.T) {
	err := fmt.Errorf("get report: %w", notFound(pgx.ErrNoRows))
	assert.True(t, errors.Is(err, ErrNotFound))

	other := errors.New("connection reset")
	assert.Equal(t, other, notFound(other))
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	if got := nullable("x"); got == nil || *got != "x" {
		t.Errorf("expected pointer to x, got %v", got)
	}
	assert.Equal(t, "", deref(nil))
}

func TestSchemaEmbedded(t *testing.T) {
	for _, want := range []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"UNIQUE (consultation_id, report_type)",
		"vector(768)",
		"hnsw (embedding vector_cosine_ops)",
	} {
		assert.Contains(t, schema, want)
	}
}
