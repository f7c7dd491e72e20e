package ledger_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/event"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ledger"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ledger/ledgertest"
)

const (
	seedHex        = "9b71d224bd62f3785d96d46ad3ea3d73319bfbc2890caadae2dff72519673ca7"
	packageID      = "0xpkg"
	rewardCoinType = "0xpkg::uni::UNI"
)

func makeCoordinator(t *testing.T, node *ledgertest.Node, opts ...func(*ledger.Config)) *ledger.Coordinator {
	t.Helper()

	signer, err := ledger.NewSigner(seedHex)
	require.NoError(t, err)

	c := ledger.Config{
		Client: ledger.NewClient(ledger.ClientConfig{URL: node.URL()}),
		Signer: signer,
		Targets: ledger.Targets{
			Package:        packageID,
			RewardCoinType: rewardCoinType,
		},
	}
	for _, opt := range opts {
		opt(&c)
	}

	return ledger.NewCoordinator(c)
}

func TestSigner(t *testing.T) {
	signer, err := ledger.NewSigner(seedHex)
	require.NoError(t, err)

	addr := signer.Address()
	require.True(t, strings.HasPrefix(addr, "0x"))
	require.Len(t, addr, 66, "address is 0x plus a 32 byte digest")

	again, err := ledger.NewSigner(seedHex)
	require.NoError(t, err)
	require.Equal(t, addr, again.Address(), "the same seed must derive the same address")

	_, err = ledger.NewSigner("abcd")
	require.Error(t, err, "a short seed must be rejected")
}

func TestCoordinator_FundAndMint(t *testing.T) {
	node := ledgertest.New(t)
	c := makeCoordinator(t, node)

	coinID := node.AddCoin(c.Address(), rewardCoinType, 15_000_000)

	quizID, err := c.FundAndMint(context.Background(), ledger.FundAndMintRequest{
		Name:        "Uni Quiz",
		Description: "Learn about Uni",
		ContentURI:  "ipfs://cid",
		Budget:      10_000_000,
		PassReward:  100_000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, quizID)

	balance, passed, ok := node.Quiz(quizID)
	require.True(t, ok)
	require.Equal(t, uint64(10_000_000), balance, "the full budget must be escrowed into the quiz object")
	require.Empty(t, passed)

	require.Equal(t, uint64(5_000_000), node.CoinBalance(coinID),
		"the payer coin must be reduced by exactly the budget")
}

func TestCoordinator_FundAndMint_PublishesEvent(t *testing.T) {
	node := ledgertest.New(t)

	eb := event.NewBus()
	var got []domain.EventQuizMinted
	eb.Subscribe(domain.EventNameQuizMinted, func(ctx context.Context, e event.Event) error {
		got = append(got, e.(domain.EventQuizMinted))
		return nil
	})

	c := makeCoordinator(t, node, func(cfg *ledger.Config) {
		cfg.EventBus = eb
	})
	node.AddCoin(c.Address(), rewardCoinType, 15_000_000)

	quizID, err := c.FundAndMint(context.Background(), ledger.FundAndMintRequest{
		Name:       "Uni Quiz",
		ContentURI: "ipfs://cid",
		Budget:     10_000_000,
		PassReward: 100_000,
	})
	require.NoError(t, err)

	eb.Stop()

	require.Len(t, got, 1)
	require.Equal(t, quizID, got[0].Quiz.QuizID)
	require.Equal(t, "ipfs://cid", got[0].Quiz.ContentURI)
	require.Equal(t, c.Address(), got[0].Quiz.Owner)
}

func TestCoordinator_FundAndMint_InsufficientFunds(t *testing.T) {
	node := ledgertest.New(t)
	c := makeCoordinator(t, node)

	node.AddCoin(c.Address(), rewardCoinType, 9_999_999)

	_, err := c.FundAndMint(context.Background(), ledger.FundAndMintRequest{
		Name:       "Uni Quiz",
		ContentURI: "ipfs://cid",
		Budget:     10_000_000,
		PassReward: 100_000,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
}

func TestCoordinator_FundAndMint_SubmitFailure(t *testing.T) {
	node := ledgertest.New(t)
	c := makeCoordinator(t, node)

	coinID := node.AddCoin(c.Address(), rewardCoinType, 15_000_000)
	node.FailSubmits = 1

	_, err := c.FundAndMint(context.Background(), ledger.FundAndMintRequest{
		Name:       "Uni Quiz",
		ContentURI: "ipfs://cid",
		Budget:     10_000_000,
		PassReward: 100_000,
	})
	require.Equal(t, errors.CodeAborted, errors.Convert(err).Code,
		"a failed submission is ambiguous and must not be blindly retried")

	require.Equal(t, uint64(15_000_000), node.CoinBalance(coinID),
		"a rejected submission must not move any funds")
}

func TestCoordinator_Pass(t *testing.T) {
	node := ledgertest.New(t)
	c := makeCoordinator(t, node)

	node.AddCoin(c.Address(), rewardCoinType, 15_000_000)
	quizID, err := c.FundAndMint(context.Background(), ledger.FundAndMintRequest{
		Name:       "Uni Quiz",
		ContentURI: "ipfs://cid",
		Budget:     10_000_000,
		PassReward: 100_000,
	})
	require.NoError(t, err)

	digest, err := c.Pass(context.Background(), quizID, "0xtaker")
	require.NoError(t, err)
	require.NotEmpty(t, digest)

	balance, passed, ok := node.Quiz(quizID)
	require.True(t, ok)
	require.Equal(t, uint64(9_900_000), balance)
	require.Equal(t, []string{"0xtaker"}, passed)

	passedNow, err := c.HasPassed(context.Background(), quizID, "0xtaker")
	require.NoError(t, err)
	require.True(t, passedNow)

	_, err = c.Pass(context.Background(), quizID, "0xtaker")
	require.Equal(t, errors.CodeAborted, errors.Convert(err).Code,
		"the pass entrypoint rejects a second pass for the same address")

	balance, passed, _ = node.Quiz(quizID)
	require.Equal(t, uint64(9_900_000), balance, "a rejected replay must not pay twice")
	require.Len(t, passed, 1)
}

func TestCoordinator_QuizObject(t *testing.T) {
	node := ledgertest.New(t)
	c := makeCoordinator(t, node)

	node.AddCoin(c.Address(), rewardCoinType, 15_000_000)
	quizID, err := c.FundAndMint(context.Background(), ledger.FundAndMintRequest{
		Name:       "Uni Quiz",
		ContentURI: "ipfs://cid",
		Budget:     10_000_000,
		PassReward: 100_000,
	})
	require.NoError(t, err)

	quiz, err := c.QuizObject(context.Background(), quizID)
	require.NoError(t, err)
	require.Equal(t, domain.QuizLedgerObject{
		ID:         quizID,
		Balance:    10_000_000,
		ContentURI: "ipfs://cid",
	}, quiz)

	_, err = c.QuizObject(context.Background(), "0xmissing")
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

func TestCoordinator_ReadRetry(t *testing.T) {
	node := ledgertest.New(t)
	c := makeCoordinator(t, node)

	node.SetBalance("0xholder", rewardCoinType, 2_000_000)
	node.UnavailableReads = 2

	balance, err := c.Balance(context.Background(), "0xholder", rewardCoinType)
	require.NoError(t, err, "transient node failures within the retry budget must be absorbed")
	require.Equal(t, uint64(2_000_000), balance)

	node.UnavailableReads = 3
	_, err = c.Balance(context.Background(), "0xholder", rewardCoinType)
	require.Equal(t, errors.CodeUnavailable, errors.Convert(err).Code)
}
