package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/session"
)

func TestNext(t *testing.T) {
	allowed := map[session.Stage]map[session.Event]session.Stage{
		session.StageLoading: {
			session.EventLoaded: session.StageEligible,
		},
		session.StageEligible: {
			session.EventQuestionsReady: session.StageAnswering,
		},
		session.StageAnswering: {
			session.EventAnswered: session.StageAnswering,
			session.EventPassed:   session.StageSuccess,
			session.EventFailed:   session.StageFail,
		},
		session.StageFail: {
			session.EventRestarted: session.StageAnswering,
		},
	}

	stages := []session.Stage{
		session.StageLoading,
		session.StageEligible,
		session.StageAnswering,
		session.StageSuccess,
		session.StageFail,
	}
	events := []session.Event{
		session.EventLoaded,
		session.EventQuestionsReady,
		session.EventAnswered,
		session.EventPassed,
		session.EventFailed,
		session.EventRestarted,
	}

	for _, s := range stages {
		for _, e := range events {
			s, e := s, e
			t.Run(s.String()+"/"+e.String(), func(t *testing.T) {
				next, err := session.Next(s, e)

				want, ok := allowed[s][e]
				if !ok {
					var te *session.TransitionError
					require.ErrorAs(t, err, &te)
					require.Equal(t, s, te.From)
					require.Equal(t, e, te.Event)
					require.Equal(t, s, next, "an illegal event should not move the stage")
					return
				}

				require.NoError(t, err)
				require.Equal(t, want, next)
			})
		}
	}
}

func TestNext_SuccessIsTerminal(t *testing.T) {
	for _, e := range []session.Event{
		session.EventLoaded,
		session.EventQuestionsReady,
		session.EventAnswered,
		session.EventPassed,
		session.EventFailed,
		session.EventRestarted,
	} {
		_, err := session.Next(session.StageSuccess, e)
		require.Error(t, err, "no event should leave the success stage")
	}
}
