// Package reward evaluates quiz answers and settles the pass reward on the
// ledger.
package reward

import (
	"context"
	"log/slog"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/event"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/telemetry"
)

// PassSubmitter submits the pass transaction for a user.
type PassSubmitter interface {
	Pass(ctx context.Context, quizID, userAddress string) (string, error)
}

// Outcome is the result of an evaluation. Digest is set only when the taker
// passed and the pass transaction was submitted.
type Outcome struct {
	Passed bool
	Digest string
}

type Config struct {
	Ledger   PassSubmitter
	EventBus *event.Bus
}

type Verifier struct {
	ledger PassSubmitter
	eb     *event.Bus
}

func NewVerifier(c Config) *Verifier {
	return &Verifier{ledger: c.Ledger, eb: c.EventBus}
}

// Evaluate checks the answers against the questions, order-sensitive and by
// exact string equality. On success it invokes the pass entrypoint exactly
// once and returns the transaction digest as proof. On failure no ledger call
// is made.
//
// Correctness is decided here, before the ledger call; the entrypoint's own
// passed-set check is the only backstop against replay.
func (v *Verifier) Evaluate(ctx context.Context, quizID, userAddress string, questions domain.QuestionSet, answers []string, passReward uint64) (Outcome, error) {
	if len(answers) != len(questions) {
		return Outcome{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("reward: got %d answers for %d questions", len(answers), len(questions)))
	}

	for i, q := range questions {
		if answers[i] != q.Answer {
			slog.InfoContext(ctx, "reward: quiz failed",
				"quiz", quizID,
				"user", userAddress,
			)
			return Outcome{Passed: false}, nil
		}
	}

	digest, err := v.ledger.Pass(ctx, quizID, userAddress)
	if err != nil {
		return Outcome{}, err
	}

	telemetry.PassesSettled.Inc()

	if v.eb != nil {
		v.eb.Publish(ctx, domain.EventQuizPassed{
			QuizID: quizID,
			User:   userAddress,
			Digest: digest,
			Reward: passReward,
		})
	}

	return Outcome{Passed: true, Digest: digest}, nil
}
