// Package demo walks the whole quiz lifecycle against in-process fakes of
// every external dependency: content store, scraping proxy, model endpoint,
// and ledger node. No network or credentials required.
package demo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/event"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/generate"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ipfs"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ledger"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ledger/ledgertest"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/metadata"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/reward"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/scrape"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/session"
)

const (
	seedHex         = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	packageID       = "0xpkg"
	rewardCoinType  = "0xpkg::uni::UNI"
	projectCoinType = "0xproject::coin::COIN"

	taker       = "0xtaker"
	secondTaker = "0xsecond"
)

// questionSets are what the fake model endpoint returns, one set per
// generation call.
var questionSets = []domain.QuestionSet{
	{
		{Text: "What does the project do?", Options: []string{"Lending", "Gaming", "Storage", "Messaging"}, Answer: "Lending"},
		{Text: "Which coin powers it?", Options: []string{"UNI", "ABC", "XYZ", "DEF"}, Answer: "UNI"},
		{Text: "Where does it run?", Options: []string{"Testnet", "Paper", "Nowhere", "Email"}, Answer: "Testnet"},
	},
	{
		{Text: "Who governs the project?", Options: []string{"Holders", "Nobody", "A bank", "The fed"}, Answer: "Holders"},
		{Text: "What secures rewards?", Options: []string{"Escrow", "Trust", "Luck", "Paper"}, Answer: "Escrow"},
		{Text: "How are passes recorded?", Options: []string{"On ledger", "In a csv", "By email", "Verbally"}, Answer: "On ledger"},
	},
	{
		{Text: "What gates eligibility?", Options: []string{"Holdings", "Age", "Location", "Invites"}, Answer: "Holdings"},
		{Text: "What pays the reward?", Options: []string{"The quiz balance", "The taker", "A faucet", "Nothing"}, Answer: "The quiz balance"},
		{Text: "How often can one pass?", Options: []string{"Once", "Twice", "Daily", "Hourly"}, Answer: "Once"},
	},
}

type world struct {
	node    *ledgertest.Node
	store   *ipfs.Client
	minter  *ledger.Coordinator
	session *session.Service
	eb      *event.Bus

	generations atomic.Int64
}

func makeWorld(t *testing.T) *world {
	t.Helper()
	w := &world{}

	// Content store: pin by content digest, serve through the gateway path.
	var (
		mu      sync.Mutex
		content = map[string][]byte{}
	)
	store := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			sum := sha256.Sum256(body)
			cid := hex.EncodeToString(sum[:])
			mu.Lock()
			content[cid] = body
			mu.Unlock()
			_ = json.NewEncoder(rw).Encode(map[string]string{"cid": cid})
			return
		}

		cid := strings.TrimPrefix(r.URL.Path, "/ipfs/")
		mu.Lock()
		body, ok := content[cid]
		mu.Unlock()
		if !ok {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = rw.Write(body)
	}))
	t.Cleanup(store.Close)

	w.store = ipfs.NewClient(ipfs.Config{
		PinURL:  store.URL,
		Gateway: store.URL + "/ipfs/",
	})

	// Scraping proxy: markdown for whatever url is asked for.
	scraper := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(rw, "# docs for %s\n\nThe project is a lending protocol.", r.URL.Query().Get("url"))
	}))
	t.Cleanup(scraper.Close)

	// Model endpoint: one scripted question set per generation call.
	model := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		i := int(w.generations.Add(1)) - 1
		require.Less(t, i, len(questionSets), "more generations than scripted sets")

		qs, err := json.Marshal(questionSets[i])
		require.NoError(t, err)
		_ = json.NewEncoder(rw).Encode(map[string]string{
			"output": "```json\n" + string(qs) + "\n```",
		})
	}))
	t.Cleanup(model.Close)

	generator := generate.NewService(generate.Config{
		Backend: generate.NewHTTPBackend(generate.HTTPBackendConfig{
			URL:   model.URL,
			Model: "demo",
		}),
		Source: scrape.NewPipeline(scrape.Config{
			Endpoint: scraper.URL,
			APIKey:   "demo",
		}),
	})

	w.node = ledgertest.New(t)
	w.eb = event.NewBus()

	signer, err := ledger.NewSigner(seedHex)
	require.NoError(t, err)

	w.minter = ledger.NewCoordinator(ledger.Config{
		Client: ledger.NewClient(ledger.ClientConfig{URL: w.node.URL()}),
		Signer: signer,
		Targets: ledger.Targets{
			Package:        packageID,
			RewardCoinType: rewardCoinType,
		},
		EventBus: w.eb,
	})

	w.session = session.NewService(session.Config{
		Ledger:    w.minter,
		Store:     w.store,
		Generator: generator,
		Settler: reward.NewVerifier(reward.Config{
			Ledger:   w.minter,
			EventBus: w.eb,
		}),
		TTL: time.Minute,
	})

	return w
}

func TestQuizLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w := makeWorld(t)

	var (
		mu     sync.Mutex
		passes []domain.EventQuizPassed
	)
	w.eb.Subscribe(domain.EventNameQuizPassed, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		passes = append(passes, e.(domain.EventQuizPassed))
		mu.Unlock()
		return nil
	})

	// Owner publishes the definition and mints the quiz with an escrowed
	// budget of 10 coins (smallest units).
	w.node.AddCoin(w.minter.Address(), rewardCoinType, 50_000_000)

	def := domain.QuizDefinition{
		Name:            "Uni Quiz",
		Description:     "Prove you read the docs",
		CreatedAt:       time.Now().UnixMilli(),
		ProjectTitle:    "Uni",
		ProjectLinks:    []string{"https://uni.example/docs"},
		ProjectCoinType: projectCoinType,
		MinProjectCoins: 1_000_000,
		PassReward:      100_000,
		HoldReward:      1_000_000,
		Budget:          10_000_000,
	}

	uri, err := metadata.NewPublisher(w.store).Publish(ctx, def)
	require.NoError(t, err)

	quizID, err := w.minter.FundAndMint(ctx, ledger.FundAndMintRequest{
		Name:        def.Name,
		Description: def.Description,
		ContentURI:  uri,
		Budget:      def.Budget,
		PassReward:  def.PassReward,
	})
	require.NoError(t, err)

	balance, passed, ok := w.node.Quiz(quizID)
	require.True(t, ok)
	require.Equal(t, uint64(10_000_000), balance)
	require.Empty(t, passed)

	// A visitor without enough project coins is turned away at the gate.
	w.node.SetBalance("0xpoor", projectCoinType, 999_999)
	_, err = w.session.Open(ctx, quizID, "0xpoor")
	require.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	// The first taker qualifies and answers everything correctly.
	w.node.SetBalance(taker, projectCoinType, 2_000_000)

	sess, err := w.session.Open(ctx, quizID, taker)
	require.NoError(t, err)
	require.Equal(t, session.StageEligible, sess.Stage)

	sess, err = w.session.Start(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, sess.Questions, domain.QuestionsPerSet)

	for _, q := range sess.Questions {
		sess, err = w.session.Answer(ctx, sess.ID, q.Answer)
		require.NoError(t, err)
	}
	require.Equal(t, session.StageSuccess, sess.Stage)
	require.NotEmpty(t, sess.Digest)

	balance, passed, _ = w.node.Quiz(quizID)
	require.Equal(t, uint64(9_900_000), balance, "one pass reward must leave the escrow")
	require.Equal(t, []string{taker}, passed)

	rewardBalance, err := w.minter.Balance(ctx, taker, rewardCoinType)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), rewardBalance, "the reward must arrive at the taker")

	// A second attempt by the same address never gets a session.
	_, err = w.session.Open(ctx, quizID, taker)
	require.ErrorIs(t, err, domain.ErrAlreadyPassed)
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	// The second taker fails first, restarts onto a fresh question set, and
	// then passes.
	w.node.SetBalance(secondTaker, projectCoinType, 1_000_000)

	sess, err = w.session.Open(ctx, quizID, secondTaker)
	require.NoError(t, err)

	sess, err = w.session.Start(ctx, sess.ID)
	require.NoError(t, err)
	firstSet := sess.Questions

	for range sess.Questions {
		sess, err = w.session.Answer(ctx, sess.ID, "definitely wrong")
		require.NoError(t, err)
	}
	require.Equal(t, session.StageFail, sess.Stage)

	balance, passed, _ = w.node.Quiz(quizID)
	require.Equal(t, uint64(9_900_000), balance, "a failed attempt must not move funds")
	require.Len(t, passed, 1)

	sess, err = w.session.Restart(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.StageAnswering, sess.Stage)
	require.NotEqual(t, firstSet, sess.Questions, "a restart must regenerate the questions")

	for _, q := range sess.Questions {
		sess, err = w.session.Answer(ctx, sess.ID, q.Answer)
		require.NoError(t, err)
	}
	require.Equal(t, session.StageSuccess, sess.Stage)

	balance, passed, _ = w.node.Quiz(quizID)
	require.Equal(t, uint64(9_800_000), balance)
	require.Equal(t, []string{taker, secondTaker}, passed)

	w.eb.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, passes, 2)
	users := make(map[string]domain.EventQuizPassed, len(passes))
	for _, p := range passes {
		require.Equal(t, quizID, p.QuizID)
		require.Equal(t, uint64(100_000), p.Reward)
		users[p.User] = p
	}
	require.Contains(t, users, taker)
	require.Contains(t, users, secondTaker)
}
