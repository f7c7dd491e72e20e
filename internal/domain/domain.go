package domain

import "errors"

// QuizDefinition is the immutable quiz content published to the content store.
// Field order is fixed so the canonical JSON encoding of identical content
// always maps to the same content address.
type QuizDefinition struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	CreatedAt       int64    `json:"created"` // epoch milliseconds
	ProjectTitle    string   `json:"projectTitle"`
	ProjectLinks    []string `json:"projectLinks"`
	ProjectCoinType string   `json:"projectCoin"`
	MinProjectCoins uint64   `json:"minProjectCoins"`
	PassReward      uint64   `json:"passReward"`
	HoldReward      uint64   `json:"holdReward"`
	Budget          uint64   `json:"budget"`
}

// QuizLedgerObject is the decoded view of the on-ledger quiz object. The
// orchestrator never mutates it directly, only through transactions.
type QuizLedgerObject struct {
	ID          string
	Balance     uint64
	PassedUsers []string
	ContentURI  string
}

// HasPassed reports whether addr is already in the passed set.
func (q QuizLedgerObject) HasPassed(addr string) bool {
	for _, u := range q.PassedUsers {
		if u == addr {
			return true
		}
	}
	return false
}

const (
	// QuestionsPerSet is the number of questions in every generated set.
	QuestionsPerSet = 3
	// OptionsPerQuestion is the number of answer options per question.
	OptionsPerQuestion = 4
)

type Question struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// QuestionSet is an ordered set of generated questions. It is ephemeral:
// generated fresh per session attempt and never persisted.
type QuestionSet []Question

// Validate enforces the generation schema: exactly QuestionsPerSet questions,
// each with OptionsPerQuestion distinct non-empty options and an answer equal
// to one of them.
func (qs QuestionSet) Validate() error {
	if len(qs) != QuestionsPerSet {
		return ErrQuestionCount
	}
	for _, q := range qs {
		if q.Text == "" {
			return ErrEmptyQuestion
		}
		if len(q.Options) != OptionsPerQuestion {
			return ErrOptionCount
		}
		seen := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if o == "" {
				return ErrEmptyOption
			}
			if _, dup := seen[o]; dup {
				return ErrDuplicateOption
			}
			seen[o] = struct{}{}
		}
		if _, ok := seen[q.Answer]; !ok {
			return ErrAnswerNotInOptions
		}
	}
	return nil
}

// QuizRecord is the registry row kept for a minted quiz.
type QuizRecord struct {
	QuizID     string
	ContentURI string
	Owner      string
	Name       string
	CreateTime int64 // epoch milliseconds
}

var (
	// ErrQuizNotFound indicates the quiz object could not be resolved on the ledger.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound indicates the session id is unknown or expired.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrAlreadyPassed blocks eligibility for an address in the passed set.
	ErrAlreadyPassed = errors.New("address has already passed this quiz")
	// ErrInsufficientHoldings blocks eligibility below the project coin minimum.
	ErrInsufficientHoldings = errors.New("insufficient project coin holdings")
	// ErrInsufficientFunds indicates no payer coin object covers the budget.
	ErrInsufficientFunds = errors.New("no coin object with sufficient balance")

	// Generation schema violations.
	ErrQuestionCount      = errors.New("question set must contain exactly 3 questions")
	ErrEmptyQuestion      = errors.New("question text must not be empty")
	ErrOptionCount        = errors.New("question must have exactly 4 options")
	ErrEmptyOption        = errors.New("option must not be empty")
	ErrDuplicateOption    = errors.New("options must be distinct")
	ErrAnswerNotInOptions = errors.New("answer must equal one of the options")
)
