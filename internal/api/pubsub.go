package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	QuizPassed struct {
		QuizID string `json:"quiz_id"`
		User   string `json:"user"`
		Digest string `json:"digest"`
		Reward string `json:"reward"`
	}
)

// PublishQuizPassed notifies the passing user over their channel so wallets
// can refresh without polling the ledger.
func (a *API) PublishQuizPassed(ctx context.Context, e domain.EventQuizPassed) error {
	data := QuizPassed{
		QuizID: e.QuizID,
		User:   e.User,
		Digest: e.Digest,
		Reward: a.displayAmount(e.Reward),
	}

	return a.publishNotification(ctx, e.User, e.Name(), data)
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
