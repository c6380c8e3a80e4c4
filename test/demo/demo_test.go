package demo

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/game"
	"github.com/groupchat-games/trivia/internal/leaderboard"
	"github.com/groupchat-games/trivia/internal/room"
)

// TestFullGame walks one complete game: two players, two trivia questions
// with auto-advance between them, then the final sprint deciding the winner
// against the score order.
func TestFullGame(t *testing.T) {
	ctx := context.Background()

	fc := clockwork.NewFakeClock()
	eb := event.NewBus()
	reg := room.NewRegistry(room.Config{EventBus: eb, Clock: fc})
	lb := leaderboard.NewService(leaderboard.Config{Registry: reg, Clock: fc})
	svc := game.NewService(game.Config{
		Registry:    reg,
		EventBus:    eb,
		Leaderboard: lb,
		Clock:       fc,
	})

	questions := []domain.Question{
		{ID: 1, Type: domain.QuestionTrivia, Text: "Largest planet?", CorrectAnswer: "Jupiter", WrongAnswers: []string{"Saturn", "Mars"}},
		{ID: 2, Type: domain.QuestionTrivia, Text: "Smallest prime?", CorrectAnswer: "2", WrongAnswers: []string{"1", "3"}},
	}
	sprint := []domain.Question{
		{ID: 3, Type: domain.QuestionTrivia, Text: "2+2?", CorrectAnswer: "4", WrongAnswers: []string{"3", "5"}},
		{ID: 4, Type: domain.QuestionTrivia, Text: "3x3?", CorrectAnswer: "9", WrongAnswers: []string{"6", "12"}},
	}

	code, err := reg.CreateSession(ctx, room.CreateSessionRequest{
		Questions:       questions,
		SprintQuestions: sprint,
	})
	require.NoError(t, err)

	ann := join(t, reg, code, "Ann")
	bob := join(t, reg, code, "Bob")

	require.NoError(t, svc.StartGame(ctx, game.StartGameRequest{RoomCode: code, RequesterID: ann}))

	// Question 1: both correct, Ann two seconds faster.
	fc.Advance(24 * time.Second) // 6 whole seconds left
	res := submit(t, svc, ann, "Jupiter")
	assert.Equal(t, 112, res.TotalScore)

	fc.Advance(2 * time.Second) // 4 left
	res = submit(t, svc, bob, "Jupiter")
	assert.Equal(t, 108, res.TotalScore)

	driveAutoAdvance(t, fc)
	waitForIndex(t, reg, code, 1)

	// Question 2: only Bob is right.
	fc.Advance(10 * time.Second)
	res = submit(t, svc, ann, "3")
	assert.False(t, res.IsCorrect)
	assert.Equal(t, 112, res.TotalScore)

	res = submit(t, svc, bob, "2")
	assert.Equal(t, 248, res.TotalScore, "108 plus 100 base plus 2x20 seconds left")

	// The regular list is exhausted, so the auto-advance lands in the
	// final sprint.
	driveAutoAdvance(t, fc)
	waitForPhase(t, reg, code, domain.PhaseFinalSprint)

	// Sprint round 1: both correct, both move 3 -> 4.
	submit(t, svc, ann, "4")
	res = submit(t, svc, bob, "4")
	assert.Equal(t, 4, res.Position)

	// Sprint round 2: both correct again, 4 -> 5, and the question list
	// runs out with nobody at the goal. The tie falls to Ann, whose
	// cumulative answer time is lower.
	submit(t, svc, ann, "9")
	res = submit(t, svc, bob, "9")
	assert.True(t, res.Finished)

	require.NoError(t, reg.View(code, func(ss *domain.Session) error {
		assert.Equal(t, domain.StatusFinished, ss.Status)
		assert.Equal(t, ann, ss.Sprint.WinnerID)
		return nil
	}))

	sum, err := lb.GetSummary(leaderboard.GetSummaryRequest{RoomCode: code})
	require.NoError(t, err)
	require.NotNil(t, sum.Winner)
	assert.Equal(t, "Ann", sum.Winner.Name, "the sprint crown beats the score lead")
	assert.Equal(t, "Bob", sum.Leaderboard[0].Name)
	assert.Equal(t, 248, sum.Leaderboard[0].Score)
	assert.Equal(t, 180.0, sum.AverageScore)
	assert.Equal(t, "Mild", sum.RoastLevel)

	eb.Stop()
}

func join(t *testing.T, reg *room.Registry, code, name string) string {
	t.Helper()

	resp, err := reg.JoinSession(context.Background(), room.JoinSessionRequest{
		RoomCode:   code,
		PlayerName: name,
	})
	require.NoError(t, err)
	return resp.PlayerID
}

func submit(t *testing.T, svc *game.Service, playerID, answer string) *domain.SubmitResult {
	t.Helper()

	res, err := svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		PlayerID: playerID,
		Answer:   answer,
	})
	require.NoError(t, err)
	return res
}

// driveAutoAdvance walks the delayed reveal task through its two sleeps.
func driveAutoAdvance(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()

	fc.BlockUntil(1)
	fc.Advance(5 * time.Second)
	fc.BlockUntil(1)
	fc.Advance(5 * time.Second)
}

func waitForIndex(t *testing.T, reg *room.Registry, code string, index int) {
	t.Helper()

	require.Eventually(t, func() bool {
		current := -1
		_ = reg.View(code, func(ss *domain.Session) error {
			current = ss.CurrentIndex
			return nil
		})
		return current == index
	}, time.Second, 5*time.Millisecond)
}

func waitForPhase(t *testing.T, reg *room.Registry, code string, phase domain.Phase) {
	t.Helper()

	require.Eventually(t, func() bool {
		var current domain.Phase
		_ = reg.View(code, func(ss *domain.Session) error {
			current = ss.Phase
			return nil
		})
		return current == phase
	}, time.Second, 5*time.Millisecond)
}
