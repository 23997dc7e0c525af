package generate

import (
	"context"
	"strings"
)

// Local is an offline Generator for local runs and demos. It extracts the
// leading sentences of the payload instead of calling a model, so the
// pipeline stays exercisable without a backend.
type Local struct {
	// MaxWords caps the extracted text. Zero means 120.
	MaxWords int
}

func (l Local) Generate(ctx context.Context, prompt string, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	max := l.MaxWords
	if max == 0 {
		max = 120
	}

	words := strings.Fields(payload)
	if len(words) > max {
		words = words[:max]
	}
	if len(words) == 0 {
		return "(no content)", nil
	}
	return strings.Join(words, " "), nil
}
