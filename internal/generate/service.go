package generate

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/telemetry"
)

const defaultMaxRetries = 2

// DocumentSource provides the normalized reference documents for a set of
// project links.
type DocumentSource interface {
	Acquire(ctx context.Context, links []string) ([]string, error)
}

type Config struct {
	Backend Backend
	Source  DocumentSource
	// MaxRetries bounds regeneration after schema validation failures.
	// Zero means defaultMaxRetries; negative disables retries.
	MaxRetries int
}

// Service turns normalized documents into a validated question set.
type Service struct {
	backend Backend
	source  DocumentSource
	retries int
}

func NewService(c Config) *Service {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return &Service{
		backend: c.Backend,
		source:  c.Source,
		retries: c.MaxRetries,
	}
}

// Generate produces a validated question set from the documents. The prompt
// is deterministic, but the backend is not, so attempts that fail schema
// validation are retried up to the configured budget. Once the budget is
// exhausted the error surfaces; a fallback question set is never fabricated.
func (s *Service) Generate(ctx context.Context, docs []string) (domain.QuestionSet, error) {
	if len(docs) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("generate: at least one document is required"))
	}

	prompt, err := buildPrompt(docs)
	if err != nil {
		return nil, errors.Internal(err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		raw, err := s.backend.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}

		qs, err := parseQuestionSet(raw)
		if err == nil {
			return qs, nil
		}

		lastErr = err
		telemetry.GenerationRetries.Inc()
		slog.WarnContext(ctx, "generate: output failed schema validation",
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, errors.New(errors.CodeInternal,
		errors.WithMessagef("generate: output failed schema validation after %d attempts", s.retries+1),
		errors.WithCause(lastErr))
}

// FromLinks acquires the reference documents for the links and generates a
// question set from them.
func (s *Service) FromLinks(ctx context.Context, links []string) (domain.QuestionSet, error) {
	docs, err := s.source.Acquire(ctx, links)
	if err != nil {
		return nil, err
	}
	return s.Generate(ctx, docs)
}

// parseQuestionSet extracts the JSON array from raw model output, tolerating
// fenced code blocks and surrounding prose, and validates it.
func parseQuestionSet(raw string) (domain.QuestionSet, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("generate: no JSON array in output"))
	}

	var qs domain.QuestionSet
	if err := json.Unmarshal([]byte(raw[start:end+1]), &qs); err != nil {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("generate: unmarshal question set"),
			errors.WithCause(err))
	}

	if err := qs.Validate(); err != nil {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("generate: invalid question set"),
			errors.WithCause(err))
	}

	return qs, nil
}
