package ledger

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/event"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/telemetry"
)

const (
	defaultGasBudget = 5_000_000

	readAttempts  = 3
	readRetryBase = 100 * time.Millisecond
)

type Config struct {
	Client  *Client
	Signer  *Signer
	Targets Targets
	// GasBudget per submitted transaction. Zero means defaultGasBudget.
	GasBudget uint64
	// EventBus, when set, receives quiz.minted events.
	EventBus *event.Bus
}

// Coordinator builds, signs, submits, and decodes results of funding, mint,
// and pass transactions. Mutating submissions are serialized per signer:
// concurrent transactions from one account would race on object versions.
type Coordinator struct {
	client    *Client
	signer    *Signer
	targets   Targets
	gasBudget uint64
	eb        *event.Bus

	// submitMu serializes FundAndMint and Pass.
	submitMu sync.Mutex

	nowMillis func() int64
}

func NewCoordinator(c Config) *Coordinator {
	if c.GasBudget == 0 {
		c.GasBudget = defaultGasBudget
	}
	return &Coordinator{
		client:    c.Client,
		signer:    c.Signer,
		targets:   c.Targets,
		gasBudget: c.GasBudget,
		eb:        c.EventBus,
		nowMillis: func() int64 { return time.Now().UnixMilli() },
	}
}

// Address is the submitting account's address.
func (c *Coordinator) Address() string { return c.signer.Address() }

// Targets exposes the resolved package targets.
func (c *Coordinator) Targets() Targets { return c.targets }

type FundAndMintRequest struct {
	Name        string
	Description string
	ContentURI  string
	Budget      uint64
	PassReward  uint64
}

// FundAndMint escrows the budget and mints the quiz object in one atomic
// transaction, returning the new quiz object id.
//
// It is never retried here: a failed submission may still have been
// finalized, so a blind resubmit risks double-spend. Callers must re-query
// ledger state to confirm non-finalization before submitting again.
func (c *Coordinator) FundAndMint(ctx context.Context, req FundAndMintRequest) (string, error) {
	coinID, err := c.selectCoin(ctx, req.Budget)
	if err != nil {
		return "", err
	}

	tx := Transaction{
		Sender:    c.signer.Address(),
		GasBudget: c.gasBudget,
		Ops: []Op{
			SplitCoinOp(coinID, req.Budget),
			MoveCallOp(c.targets.MintTarget(),
				[]string{c.targets.RewardCoinType},
				PureArg(req.Name),
				PureArg(req.Description),
				PureArg(req.ContentURI),
				ResultArg(0),
				PureArg(req.PassReward),
			),
		},
	}

	res, err := c.submit(ctx, "mint", tx)
	if err != nil {
		return "", err
	}

	quizID := ""
	for _, change := range res.ObjectChanges {
		if change.Kind == "created" && change.ObjectType == c.targets.QuizObjectType() {
			quizID = change.ObjectID
			break
		}
	}
	if quizID == "" {
		return "", errors.New(errors.CodeInternal,
			errors.WithMessagef("ledger: mint transaction %s created no quiz object", res.Digest))
	}

	slog.InfoContext(ctx, "ledger: quiz minted",
		"quiz", quizID,
		"digest", res.Digest,
		"budget", req.Budget,
	)

	if c.eb != nil {
		c.eb.Publish(ctx, domain.EventQuizMinted{
			Quiz: domain.QuizRecord{
				QuizID:     quizID,
				ContentURI: req.ContentURI,
				Owner:      c.signer.Address(),
				Name:       req.Name,
				CreateTime: c.nowMillis(),
			},
		})
	}

	return quizID, nil
}

// selectCoin picks the payer's coin object to escrow from: the first owned
// coin whose balance covers the budget, so selection is reproducible and
// auditable.
func (c *Coordinator) selectCoin(ctx context.Context, budget uint64) (string, error) {
	var coins []RawObject
	err := c.readRetry(ctx, "getOwnedObjects", func(ctx context.Context) error {
		var err error
		coins, err = c.client.GetOwnedObjects(ctx, c.signer.Address(), CoinObjectType(c.targets.RewardCoinType))
		return err
	})
	if err != nil {
		return "", err
	}

	for _, coin := range coins {
		balance, err := decodeCoinBalance(coin)
		if err != nil {
			return "", errors.Internal(err)
		}
		if balance >= budget {
			return coin.ID, nil
		}
	}

	return "", errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("ledger: no owned coin covers budget %d", budget),
		errors.WithCause(domain.ErrInsufficientFunds))
}

// Pass submits the pass transaction for a user and returns the transaction
// digest. The pass entrypoint is the sole authority over the passed set and
// rejects a second pass for the same address, which is what makes a resubmit
// after an ambiguous failure safe once the caller has re-queried membership.
func (c *Coordinator) Pass(ctx context.Context, quizID, userAddress string) (string, error) {
	tx := Transaction{
		Sender:    c.signer.Address(),
		GasBudget: c.gasBudget,
		Ops: []Op{
			MoveCallOp(c.targets.PassTarget(),
				[]string{c.targets.RewardCoinType},
				ObjectArg(quizID),
				PureArg(userAddress),
			),
		},
	}

	res, err := c.submit(ctx, "pass", tx)
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "ledger: quiz passed",
		"quiz", quizID,
		"user", userAddress,
		"digest", res.Digest,
	)

	return res.Digest, nil
}

func (c *Coordinator) submit(ctx context.Context, entrypoint string, tx Transaction) (TxResult, error) {
	txBytes, err := tx.Encode()
	if err != nil {
		return TxResult{}, errors.Internal(err)
	}

	signed := SignedTransaction{
		TxBytes:   txBytes,
		Signature: c.signer.Sign(txBytes),
		PublicKey: c.signer.PublicKey(),
	}

	c.submitMu.Lock()
	res, err := c.client.Submit(ctx, signed)
	c.submitMu.Unlock()

	if err != nil {
		telemetry.LedgerSubmissions.WithLabelValues(entrypoint, "error").Inc()
		return TxResult{}, errors.New(errors.CodeAborted,
			errors.WithMessagef("ledger: %s submission failed, finalization unknown: re-query state before resubmitting", entrypoint),
			errors.WithCause(err))
	}

	telemetry.LedgerSubmissions.WithLabelValues(entrypoint, "ok").Inc()
	return res, nil
}

// Balance returns owner's aggregate balance of coinType.
func (c *Coordinator) Balance(ctx context.Context, owner, coinType string) (uint64, error) {
	var balance uint64
	err := c.readRetry(ctx, "getBalance", func(ctx context.Context) error {
		var err error
		balance, err = c.client.GetBalance(ctx, owner, coinType)
		return err
	})
	return balance, err
}

// QuizObject fetches and decodes the quiz object.
func (c *Coordinator) QuizObject(ctx context.Context, quizID string) (domain.QuizLedgerObject, error) {
	var raw RawObject
	err := c.readRetry(ctx, "getObject", func(ctx context.Context) error {
		var err error
		raw, err = c.client.GetObject(ctx, quizID)
		return err
	})
	if stderrors.Is(err, domain.ErrQuizNotFound) {
		return domain.QuizLedgerObject{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("ledger: quiz object %s not found", quizID),
			errors.WithCause(err))
	}
	if err != nil {
		return domain.QuizLedgerObject{}, err
	}

	quiz, err := DecodeQuizObject(raw)
	if err != nil {
		return domain.QuizLedgerObject{}, errors.Internal(err)
	}
	return quiz, nil
}

// HasPassed reports whether userAddress is in the quiz's passed set. This is
// the re-query step callers run before deciding to resubmit a pass.
func (c *Coordinator) HasPassed(ctx context.Context, quizID, userAddress string) (bool, error) {
	quiz, err := c.QuizObject(ctx, quizID)
	if err != nil {
		return false, err
	}
	return quiz.HasPassed(userAddress), nil
}

// readRetry repeats an idempotent read with bounded backoff while it fails
// with a transport-level error. Node-reported errors surface immediately.
func (c *Coordinator) readRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < readAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.New(errors.CodeUnavailable,
					errors.WithMessagef("ledger: %s canceled", op),
					errors.WithCause(ctx.Err()))
			case <-time.After(readRetryBase << (attempt - 1)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Convert(err).Code != errors.CodeUnavailable {
			return err
		}

		lastErr = err
		slog.WarnContext(ctx, "ledger: retrying read",
			"operation", op,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return lastErr
}
