package game

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/errors"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/score"
	"github.com/groupchat-games/trivia/internal/telemetry"
)

// errStale marks an auto-advance resumption that found the session in a
// different question or phase than it went to sleep on. It is the silent
// race-guard outcome, never surfaced to callers.
var errStale = stderrors.New("game: session moved on")

type AdvanceRequest struct {
	RoomCode    string
	RequesterID string
}

// AdvanceQuestion is the host-driven transition to the next question.
// Creator only.
func (s *Service) AdvanceQuestion(ctx context.Context, req AdvanceRequest) error {
	err := s.reg.View(req.RoomCode, func(ss *domain.Session) error {
		if ss.CreatorID != req.RequesterID {
			return errors.New(errors.CodePermissionDenied,
				errors.WithMessagef("only the room creator can advance the game"))
		}
		return nil
	})
	if err != nil {
		return err
	}

	events, finished, err := s.advance(req.RoomCode, -1)
	if err != nil {
		return err
	}

	for _, e := range events {
		s.eb.Publish(ctx, e)
	}
	if finished {
		s.publishFinished(ctx, req.RoomCode)
	}
	return nil
}

// advance moves the room past the current question: on to the next regular
// question, into the final sprint when the regular list is exhausted, or
// straight to finished when no sprint questions exist. expect >= 0 pins the
// transition to a specific question index; a mismatch means another actor
// moved the game first and the call is a silent no-op (errStale).
func (s *Service) advance(roomCode string, expect int) (events []event.Event, finished bool, err error) {
	err = s.reg.Mutate(roomCode, func(ss *domain.Session) error {
		if ss.Phase != domain.PhaseQuestion {
			if expect >= 0 {
				return errStale
			}
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("room %s is not in the question phase", roomCode))
		}
		if expect >= 0 && ss.CurrentIndex != expect {
			return errStale
		}

		ss.AutoAdvancePending = false
		ss.CurrentIndex++

		switch {
		case ss.CurrentIndex < len(ss.Questions):
			s.beginQuestion(ss)
			events = append(events, s.questionStartedEvent(ss))

		case len(ss.SprintQuestions) > 0:
			events = append(events, s.enterSprint(ss))

		default:
			s.finishGame(ss)
			finished = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return events, finished, nil
}

func (s *Service) finishGame(ss *domain.Session) {
	ss.Status = domain.StatusFinished
	ss.Phase = domain.PhaseFinished
	ss.CurrentPayload = nil
}

// runAutoAdvance is the one-shot delayed reveal→advance sequence, started
// after the last alive player answers question index. It never holds the
// registry lock across a sleep, and every resumption re-validates that the
// session still exists and still sits on the same question, so teardown or
// a manual advance mid-delay is a safe no-op.
func (s *Service) runAutoAdvance(roomCode string, index int) {
	ctx := context.Background()

	// Guaranteed release: whatever happens, the pending flag never stays
	// stuck on the question it was set for.
	defer func() {
		_ = s.reg.Mutate(roomCode, func(ss *domain.Session) error {
			if ss.Phase == domain.PhaseQuestion && ss.CurrentIndex == index {
				ss.AutoAdvancePending = false
			}
			return nil
		})
	}()

	s.clock.Sleep(s.revealDelay)

	var reveal domain.EventAnswerRevealed
	err := s.reg.Mutate(roomCode, func(ss *domain.Session) error {
		if ss.Phase != domain.PhaseQuestion || ss.CurrentIndex != index {
			return errStale
		}
		reveal = s.resolveReveal(ss)
		return nil
	})
	if err != nil {
		if !stderrors.Is(err, errStale) && !errors.IsCode(err, errors.CodeNotFound) {
			slog.ErrorContext(ctx, "game: auto-advance reveal failed", "room", roomCode, "error", err)
		}
		return
	}

	s.eb.Publish(ctx, reveal)

	s.clock.Sleep(s.displayTime)

	events, finished, err := s.advance(roomCode, index)
	if err != nil {
		if !stderrors.Is(err, errStale) && !errors.IsCode(err, errors.CodeNotFound) {
			slog.ErrorContext(ctx, "game: auto-advance failed", "room", roomCode, "error", err)
		}
		return
	}

	for _, e := range events {
		s.eb.Publish(ctx, e)
	}
	if finished {
		s.publishFinished(ctx, roomCode)
	}

	telemetry.AutoAdvances.Inc()
}

// resolveReveal applies deferred poll scoring and builds the reveal event.
// For polls the "correct answer" shown is the winning vote; the question's
// own correct answer is never consulted. Callers hold the registry lock.
func (s *Service) resolveReveal(ss *domain.Session) domain.EventAnswerRevealed {
	q, _ := ss.CurrentQuestion()

	if q.Type != domain.QuestionPoll {
		return domain.EventAnswerRevealed{
			RoomCode:      ss.RoomCode,
			CorrectAnswer: q.CorrectAnswer,
		}
	}

	stats, winner, votes := score.TallyPoll(ss.AnswerOrder)
	if winner != "" {
		for _, p := range ss.Players {
			if strings.EqualFold(p.Name, winner) {
				p.Score += score.PollAward(votes)
				break
			}
		}
	}

	return domain.EventAnswerRevealed{
		RoomCode:      ss.RoomCode,
		CorrectAnswer: winner,
		VoteStats:     stats,
	}
}
