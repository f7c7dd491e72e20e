package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/event"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ledger"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/session"
)

// ContentStore publishes and fetches immutable blobs.
type ContentStore interface {
	Publish(ctx context.Context, data []byte) (string, error)
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Generator produces a validated question set from project links.
type Generator interface {
	FromLinks(ctx context.Context, links []string) (domain.QuestionSet, error)
}

// Sessions is the quiz session state machine surface.
type Sessions interface {
	Open(ctx context.Context, quizID, userAddress string) (session.Session, error)
	Start(ctx context.Context, sessionID string) (session.Session, error)
	Answer(ctx context.Context, sessionID, answer string) (session.Session, error)
	Restart(ctx context.Context, sessionID string) (session.Session, error)
	Get(sessionID string) (session.Session, error)
}

// Metadata publishes quiz definitions to the content store.
type Metadata interface {
	Publish(ctx context.Context, def domain.QuizDefinition) (string, error)
}

// Minter escrows the budget and mints the quiz object.
type Minter interface {
	FundAndMint(ctx context.Context, req ledger.FundAndMintRequest) (string, error)
}

// QuizReader resolves on-ledger quiz objects.
type QuizReader interface {
	QuizObject(ctx context.Context, quizID string) (domain.QuizLedgerObject, error)
}

// Registry lists minted quizzes.
type Registry interface {
	List(ctx context.Context) ([]domain.QuizRecord, error)
	Get(ctx context.Context, quizID string) (domain.QuizRecord, error)
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Config struct {
	Router   *gin.Engine
	EventBus *event.Bus

	Store     ContentStore
	Generator Generator
	Sessions  Sessions
	Metadata  Metadata
	Minter    Minter
	Ledger    QuizReader
	Registry  Registry

	Redis        Redis
	PubsubPrefix string

	// CoinDecimals converts smallest-unit amounts to display units in
	// responses.
	CoinDecimals int32
}

type API struct {
	store     ContentStore
	generator Generator
	sessions  Sessions
	metadata  Metadata
	minter    Minter
	ledger    QuizReader
	registry  Registry

	redis  Redis
	prefix string

	decimals int32
}

func New(c Config) *API {
	a := &API{
		store:     c.Store,
		generator: c.Generator,
		sessions:  c.Sessions,
		metadata:  c.Metadata,
		minter:    c.Minter,
		ledger:    c.Ledger,
		registry:  c.Registry,
		redis:     c.Redis,
		prefix:    c.PubsubPrefix,
		decimals:  c.CoinDecimals,
	}

	r := c.Router
	r.POST("/content-upload", a.ContentUpload)
	r.POST("/question-generation", a.QuestionGeneration)
	r.POST("/quizzes", a.CreateQuiz)
	r.GET("/quizzes", a.ListQuizzes)
	r.GET("/quizzes/:id", a.GetQuiz)
	r.POST("/sessions", a.OpenSession)
	r.GET("/sessions/:id", a.GetSession)
	r.POST("/sessions/:id/start", a.StartSession)
	r.POST("/sessions/:id/answers", a.SubmitAnswer)
	r.POST("/sessions/:id/restart", a.RestartSession)

	if c.EventBus != nil && c.Redis != nil {
		c.EventBus.Subscribe(domain.EventNameQuizPassed, func(ctx context.Context, e event.Event) error {
			return a.PublishQuizPassed(ctx, e.(domain.EventQuizPassed))
		})
	}

	return a
}

// Uniform response envelope: {success, data?, error?{message}}.
type envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *envelopeError `json:"error,omitempty"`
}

type envelopeError struct {
	Message string `json:"message"`
}

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// fail resolves business errors at the boundary and hides infrastructure
// details behind a generic message, keeping the specifics in the log.
func fail(c *gin.Context, err error) {
	e := errors.Convert(err)

	msg := e.Message
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		msg = "Internal server error, try again later"
	}

	c.JSON(e.HTTPStatusCode(), envelope{Success: false, Error: &envelopeError{Message: msg}})
}

func badRequest(c *gin.Context, err error) {
	fail(c, errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("Request body invalid: %v", err)))
}

// ContentUpload publishes a JSON blob to the content store.
func (a *API) ContentUpload(c *gin.Context) {
	var req struct {
		Data string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	uri, err := a.store.Publish(c.Request.Context(), []byte(req.Data))
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, uri)
}

// QuestionGeneration acquires the project links and generates a question set.
func (a *API) QuestionGeneration(c *gin.Context) {
	var req struct {
		ProjectLinks []string `json:"projectLinks" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	questions, err := a.generator.FromLinks(c.Request.Context(), req.ProjectLinks)
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, questions)
}

type createQuizRequest struct {
	Name            string   `json:"name" binding:"required"`
	Description     string   `json:"description"`
	ProjectTitle    string   `json:"projectTitle"`
	ProjectLinks    []string `json:"projectLinks" binding:"required,min=1"`
	ProjectCoin     string   `json:"projectCoin" binding:"required"`
	MinProjectCoins uint64   `json:"minProjectCoins"`
	PassReward      uint64   `json:"passReward"`
	HoldReward      uint64   `json:"holdReward"`
	Budget          uint64   `json:"budget" binding:"required"`
}

// CreateQuiz runs the owner flow: publish the definition, then escrow the
// budget and mint the quiz object referencing it.
func (a *API) CreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	def := domain.QuizDefinition{
		Name:            req.Name,
		Description:     req.Description,
		CreatedAt:       time.Now().UnixMilli(),
		ProjectTitle:    req.ProjectTitle,
		ProjectLinks:    req.ProjectLinks,
		ProjectCoinType: req.ProjectCoin,
		MinProjectCoins: req.MinProjectCoins,
		PassReward:      req.PassReward,
		HoldReward:      req.HoldReward,
		Budget:          req.Budget,
	}

	uri, err := a.metadata.Publish(c.Request.Context(), def)
	if err != nil {
		fail(c, err)
		return
	}

	quizID, err := a.minter.FundAndMint(c.Request.Context(), ledger.FundAndMintRequest{
		Name:        def.Name,
		Description: def.Description,
		ContentURI:  uri,
		Budget:      def.Budget,
		PassReward:  def.PassReward,
	})
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, gin.H{
		"quizId":     quizID,
		"contentUri": uri,
	})
}

// ListQuizzes returns the registry of minted quizzes.
func (a *API) ListQuizzes(c *gin.Context) {
	records, err := a.registry.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]gin.H, 0, len(records))
	for _, rec := range records {
		out = append(out, gin.H{
			"quizId":     rec.QuizID,
			"contentUri": rec.ContentURI,
			"owner":      rec.Owner,
			"name":       rec.Name,
			"created":    rec.CreateTime,
		})
	}

	respond(c, out)
}

// GetQuiz resolves the on-ledger quiz object and its published definition.
func (a *API) GetQuiz(c *gin.Context) {
	ctx := c.Request.Context()

	quiz, err := a.ledger.QuizObject(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	data, err := a.store.Fetch(ctx, quiz.ContentURI)
	if err != nil {
		fail(c, err)
		return
	}

	out := gin.H{
		"quizId":       quiz.ID,
		"balance":      quiz.Balance,
		"balanceCoins": a.displayAmount(quiz.Balance),
		"passedUsers":  quiz.PassedUsers,
		"contentUri":   quiz.ContentURI,
		"definition":   json.RawMessage(data),
	}

	// Registry enrichment is best effort: the ledger object is the source of
	// truth and a missing row must not hide the quiz.
	if rec, err := a.registry.Get(ctx, quiz.ID); err == nil {
		out["owner"] = rec.Owner
		out["name"] = rec.Name
	}

	respond(c, out)
}

// OpenSession loads the quiz and runs the eligibility gate.
func (a *API) OpenSession(c *gin.Context) {
	var req struct {
		QuizID      string `json:"quizId" binding:"required"`
		UserAddress string `json:"userAddress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess, err := a.sessions.Open(c.Request.Context(), req.QuizID, req.UserAddress)
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, a.sessionDTO(sess))
}

func (a *API) GetSession(c *gin.Context) {
	sess, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, a.sessionDTO(sess))
}

func (a *API) StartSession(c *gin.Context) {
	sess, err := a.sessions.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, a.sessionDTO(sess))
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req struct {
		Answer string `json:"answer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess, err := a.sessions.Answer(c.Request.Context(), c.Param("id"), req.Answer)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, a.sessionDTO(sess))
}

func (a *API) RestartSession(c *gin.Context) {
	sess, err := a.sessions.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, a.sessionDTO(sess))
}

// sessionDTO shapes a session for clients. Answers stay server-side and the
// correct answer is stripped from questions: evaluation happens here, not in
// the taker's hands.
func (a *API) sessionDTO(sess session.Session) gin.H {
	questions := make([]gin.H, 0, len(sess.Questions))
	for _, q := range sess.Questions {
		questions = append(questions, gin.H{
			"question": q.Text,
			"options":  q.Options,
		})
	}

	dto := gin.H{
		"sessionId": sess.ID,
		"quizId":    sess.QuizID,
		"user":      sess.User,
		"stage":     sess.Stage.String(),
		"questions": questions,
		"answered":  len(sess.Answers),
		"passReward": gin.H{
			"amount": sess.Definition.PassReward,
			"coins":  a.displayAmount(sess.Definition.PassReward),
		},
	}
	if sess.Digest != "" {
		dto["digest"] = sess.Digest
	}
	return dto
}

func (a *API) displayAmount(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -a.decimals).String()
}
