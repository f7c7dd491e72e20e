package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/reward"
)

const defaultTTL = 30 * time.Minute

// Ledger is the read slice of the transaction coordinator the session needs.
type Ledger interface {
	QuizObject(ctx context.Context, quizID string) (domain.QuizLedgerObject, error)
	Balance(ctx context.Context, owner, coinType string) (uint64, error)
}

// ContentStore fetches immutable blobs by content URI.
type ContentStore interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Generator produces a validated question set for a set of project links.
type Generator interface {
	FromLinks(ctx context.Context, links []string) (domain.QuestionSet, error)
}

// Settler evaluates answers and settles the reward on success.
type Settler interface {
	Evaluate(ctx context.Context, quizID, userAddress string, questions domain.QuestionSet, answers []string, passReward uint64) (reward.Outcome, error)
}

type Config struct {
	Ledger    Ledger
	Store     ContentStore
	Generator Generator
	Settler   Settler
	// TTL evicts abandoned sessions. Zero means defaultTTL. Eviction needs
	// no compensating ledger action: nothing is mutated before settlement.
	TTL time.Duration
}

// Session is a caller-facing snapshot of one quiz attempt. Sessions live only
// in process memory and do not survive a restart.
type Session struct {
	ID         string
	QuizID     string
	User       string
	Stage      Stage
	Definition domain.QuizDefinition
	Questions  domain.QuestionSet
	Answers    []string
	Digest     string
	CreatedAt  time.Time
}

// Service governs the per-user quiz lifecycle from eligibility check through
// result.
type Service struct {
	ledger    Ledger
	store     ContentStore
	generator Generator
	settler   Settler
	ttl       time.Duration
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewService(c Config) *Service {
	if c.TTL == 0 {
		c.TTL = defaultTTL
	}
	return &Service{
		ledger:    c.Ledger,
		store:     c.Store,
		generator: c.Generator,
		settler:   c.Settler,
		ttl:       c.TTL,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Open loads the quiz object and its definition, runs the eligibility gate,
// and creates a session. No ledger state is mutated; an ineligible taker gets
// a typed rejection with a reason and nothing to clean up.
func (s *Service) Open(ctx context.Context, quizID, userAddress string) (Session, error) {
	if quizID == "" || userAddress == "" {
		return Session{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("session: quiz id and user address are required"))
	}

	quiz, err := s.ledger.QuizObject(ctx, quizID)
	if err != nil {
		return Session{}, err
	}

	data, err := s.store.Fetch(ctx, quiz.ContentURI)
	if err != nil {
		return Session{}, err
	}

	var def domain.QuizDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return Session{}, errors.Internal(fmt.Errorf("session: malformed quiz definition at %s: %w", quiz.ContentURI, err))
	}

	if quiz.HasPassed(userAddress) {
		return Session{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session: %s has already passed quiz %s", userAddress, quizID),
			errors.WithCause(domain.ErrAlreadyPassed))
	}

	holdings, err := s.ledger.Balance(ctx, userAddress, def.ProjectCoinType)
	if err != nil {
		return Session{}, err
	}
	if holdings < def.MinProjectCoins {
		return Session{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session: holdings %d below required %d of %s", holdings, def.MinProjectCoins, def.ProjectCoinType),
			errors.WithCause(domain.ErrInsufficientHoldings))
	}

	stage, err := Next(StageLoading, EventLoaded)
	if err != nil {
		return Session{}, errors.Internal(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, errors.Internal(fmt.Errorf("session: generate id: %w", err))
	}

	sess := &Session{
		ID:         id.String(),
		QuizID:     quizID,
		User:       userAddress,
		Stage:      stage,
		Definition: def,
		CreatedAt:  s.now(),
	}

	s.mu.Lock()
	s.purgeExpiredLocked()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	slog.InfoContext(ctx, "session: opened",
		"session", sess.ID,
		"quiz", quizID,
		"user", userAddress,
	)

	return *sess, nil
}

// Start generates a fresh question set and moves the session to answering.
// A generation failure leaves the session unstarted; nothing on the ledger
// has been touched yet.
func (s *Service) Start(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.snapshot(sessionID)
	if err != nil {
		return Session{}, err
	}
	if _, err := Next(sess.Stage, EventQuestionsReady); err != nil {
		return Session{}, errors.New(errors.CodeFailedPrecondition, errors.WithCause(err))
	}

	questions, err := s.generator.FromLinks(ctx, sess.Definition.ProjectLinks)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, errors.New(errors.CodeNotFound, errors.WithCause(domain.ErrSessionNotFound))
	}
	stage, err := Next(stored.Stage, EventQuestionsReady)
	if err != nil {
		return Session{}, errors.New(errors.CodeFailedPrecondition, errors.WithCause(err))
	}
	stored.Stage = stage
	stored.Questions = questions
	stored.Answers = nil
	return *stored, nil
}

// Answer appends the submitted answer. The final answer triggers evaluation:
// on success the session becomes terminal with the settlement digest, on
// failure it moves to the fail stage, restartable via Restart.
func (s *Service) Answer(ctx context.Context, sessionID, answer string) (Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return Session{}, errors.New(errors.CodeNotFound, errors.WithCause(domain.ErrSessionNotFound))
	}
	if sess.Stage != StageAnswering {
		s.mu.Unlock()
		return Session{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithCause(&TransitionError{From: sess.Stage, Event: EventAnswered}))
	}
	if len(sess.Answers) >= len(sess.Questions) {
		// A full answer sheet still in answering means settlement is in
		// flight. Reject instead of recording a surplus answer the recovery
		// path would pop by mistake.
		s.mu.Unlock()
		return Session{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session: all %d answers already submitted", len(sess.Questions)))
	}

	sess.Answers = append(sess.Answers, answer)
	final := len(sess.Answers) == len(sess.Questions)
	questions := sess.Questions
	answers := append([]string(nil), sess.Answers...)
	quizID, user := sess.QuizID, sess.User
	passReward := sess.Definition.PassReward
	s.mu.Unlock()

	if !final {
		return s.snapshot(sessionID)
	}

	outcome, err := s.settler.Evaluate(ctx, quizID, user, questions, answers, passReward)
	if err != nil {
		// Settlement failed ambiguously. Drop the final answer so the taker
		// can resubmit it once the caller has reconciled ledger state.
		s.mu.Lock()
		if stored, ok := s.sessions[sessionID]; ok && len(stored.Answers) > 0 {
			stored.Answers = stored.Answers[:len(stored.Answers)-1]
		}
		s.mu.Unlock()
		return Session{}, err
	}

	event := EventFailed
	if outcome.Passed {
		event = EventPassed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, errors.New(errors.CodeNotFound, errors.WithCause(domain.ErrSessionNotFound))
	}
	stage, err := Next(stored.Stage, event)
	if err != nil {
		return Session{}, errors.Internal(err)
	}
	stored.Stage = stage
	stored.Digest = outcome.Digest
	return *stored, nil
}

// Restart returns a failed session to answering with cleared answers and a
// freshly generated question set. Reusing the old set would let a failed
// taker walk the same answers by elimination, so regeneration is deliberate.
func (s *Service) Restart(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.snapshot(sessionID)
	if err != nil {
		return Session{}, err
	}
	if _, err := Next(sess.Stage, EventRestarted); err != nil {
		return Session{}, errors.New(errors.CodeFailedPrecondition, errors.WithCause(err))
	}

	questions, err := s.generator.FromLinks(ctx, sess.Definition.ProjectLinks)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, errors.New(errors.CodeNotFound, errors.WithCause(domain.ErrSessionNotFound))
	}
	stage, err := Next(stored.Stage, EventRestarted)
	if err != nil {
		return Session{}, errors.New(errors.CodeFailedPrecondition, errors.WithCause(err))
	}
	stored.Stage = stage
	stored.Questions = questions
	stored.Answers = nil
	stored.Digest = ""
	return *stored, nil
}

// Get returns a snapshot of the session.
func (s *Service) Get(sessionID string) (Session, error) {
	return s.snapshot(sessionID)
}

func (s *Service) snapshot(sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		delete(s.sessions, sessionID)
		return Session{}, errors.New(errors.CodeNotFound, errors.WithCause(domain.ErrSessionNotFound))
	}
	return *sess, nil
}

func (s *Service) expired(sess *Session) bool {
	return s.now().Sub(sess.CreatedAt) > s.ttl
}

func (s *Service) purgeExpiredLocked() {
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
		}
	}
}
