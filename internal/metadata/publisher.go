// Package metadata assembles and publishes quiz definitions to the content
// store.
package metadata

import (
	"context"
	"encoding/json"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
)

// ContentStore is the slice of the content store client the publisher needs.
type ContentStore interface {
	Publish(ctx context.Context, data []byte) (string, error)
}

type Publisher struct {
	store ContentStore
}

func NewPublisher(store ContentStore) *Publisher {
	return &Publisher{store: store}
}

// Publish serializes the definition canonically and uploads it, returning the
// content URI. It is a pure function of its input modulo the store's
// idempotent-upload guarantee: the same definition always yields the same URI.
func (p *Publisher) Publish(ctx context.Context, def domain.QuizDefinition) (string, error) {
	if err := validate(def); err != nil {
		return "", err
	}

	// encoding/json emits struct fields in declaration order, which fixes
	// the key order and keeps the encoding canonical.
	data, err := json.Marshal(def)
	if err != nil {
		return "", errors.Internal(err)
	}

	return p.store.Publish(ctx, data)
}

func validate(def domain.QuizDefinition) error {
	switch {
	case def.Name == "":
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("metadata: name is required"))
	case len(def.ProjectLinks) == 0:
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("metadata: at least one project link is required"))
	case def.ProjectCoinType == "":
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("metadata: project coin type is required"))
	case def.Budget < def.PassReward:
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("metadata: budget %d is less than pass reward %d", def.Budget, def.PassReward))
	}

	for _, link := range def.ProjectLinks {
		if link == "" {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("metadata: project links must not be empty"))
		}
	}

	return nil
}
