package domain

const (
	EventNameQuizMinted = "quiz.minted"
	EventNameQuizPassed = "quiz.passed"
)

type EventQuizMinted struct {
	Quiz QuizRecord
}

func (EventQuizMinted) Name() string { return EventNameQuizMinted }

type EventQuizPassed struct {
	QuizID string
	User   string
	Digest string
	Reward uint64
}

func (EventQuizPassed) Name() string { return EventNameQuizPassed }
