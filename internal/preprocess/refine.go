package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ippeo/consultd/internal/llm"
)

const (
	// DefaultMaxRefineChars skips refinement for longer transcripts.
	DefaultMaxRefineChars = 15000
	// minKeptRatio rejects refinements that shrank the text below this share.
	minKeptRatio = 0.3
)

const refineSystemPrompt = `You clean up speech-to-text transcripts of cosmetic-medicine consultations.
Fix obvious transcription errors and merge sentences that were split across lines.
Never add, remove or reinterpret medical content, prices, dates or procedure names.
Never drop or rename speaker labels such as "상담사:" and "고객:".
Keep the original language. Return only the corrected transcript.`

const refineUserPrompt = `Correct the following transcript.

---
%s
---`

// Refiner asks the model to repair transcription errors. It never fails:
// on error or a suspicious result the input is returned.
type Refiner struct {
	llm      llm.Generator
	maxChars int
	logger   *slog.Logger
}

func NewRefiner(gen llm.Generator, maxChars int, logger *slog.Logger) *Refiner {
	if maxChars <= 0 {
		maxChars = DefaultMaxRefineChars
	}
	return &Refiner{llm: gen, maxChars: maxChars, logger: logger}
}

func (r *Refiner) Refine(ctx context.Context, text string) string {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return text
	}
	if n > r.maxChars {
		r.logger.Info("transcript too long, skipping refinement", "chars", n, "max_chars", r.maxChars)
		return text
	}

	out, err := r.llm.GenerateText(ctx, fmt.Sprintf(refineUserPrompt, text), refineSystemPrompt)
	if err != nil {
		r.logger.Warn("refinement failed, keeping original", "error", err)
		return text
	}
	out = strings.TrimSpace(out)

	kept := utf8.RuneCountInString(out)
	if float64(kept) < float64(n)*minKeptRatio {
		r.logger.Warn("refinement shrank transcript, keeping original", "chars", n, "refined_chars", kept)
		return text
	}
	return out
}
