package game

import (
	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/errors"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/telemetry"
)

const (
	sprintMinGoal    = 6
	sprintGoalMargin = 3
	sprintAliveStart = 3
	sprintGhostStart = 1
)

// enterSprint initializes the final-sprint sub-machine. Alive players carry
// their standing forward at position 3, ghosts restart at 1; the goal sits
// a fixed margin past the best starting position, never below the minimum.
// Callers hold the registry lock.
func (s *Service) enterSprint(ss *domain.Session) event.Event {
	positions := make(map[string]int, len(ss.Players))
	maxStart := 0
	for id, p := range ss.Players {
		start := sprintGhostStart
		if p.Status == domain.PlayerAlive {
			start = sprintAliveStart
		}
		positions[id] = start
		if start > maxStart {
			maxStart = start
		}
	}

	goal := maxStart + sprintGoalMargin
	if goal < sprintMinGoal {
		goal = sprintMinGoal
	}

	ss.Phase = domain.PhaseFinalSprint
	ss.Sprint = &domain.SprintState{
		Positions:  positions,
		Goal:       goal,
		RoundStart: s.clock.Now(),
		TimeLimit:  s.sprintTimer,
		Responses:  make(map[string]string),
	}
	ss.CurrentPayload = buildPayload(ss.SprintQuestions[0])

	return domain.EventFinalSprintStarted{
		RoomCode:  ss.RoomCode,
		Goal:      goal,
		Positions: copyPositions(positions),
		Question:  *ss.CurrentPayload,
	}
}

// submitSprint handles one response in the final sprint. Each round is a
// rendezvous: every player (alive and ghost) submits once, and the round
// resolves when the last response lands. A correct answer that would reach
// the goal wins the game on the spot, without waiting for the rendezvous.
// An expired round is resolved lazily by the next submission; the stale
// submission itself is rejected, it answered a question that is no longer
// in play.
func (s *Service) submitSprint(ss *domain.Session, p *domain.Player, answer string, result *domain.SubmitResult, events *[]event.Event, finished *bool) error {
	sp := ss.Sprint

	if s.remainingSeconds(ss) <= 0 {
		s.resolveSprintRound(ss, events, finished)
		if *finished {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("the final sprint is over"))
		}
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("time is up for this sprint round"))
	}

	if _, dup := sp.Responses[p.ID]; dup {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("player %s already answered this sprint round", p.Name))
	}

	q := ss.SprintQuestions[sp.Index]
	correct := answer == q.CorrectAnswer

	p.AnswerTime += s.clock.Now().Sub(sp.RoundStart)
	p.Answers++

	// Immediate win: positions only increase, and reaching the goal ends
	// the game even while other responses for the round are pending.
	if correct && sp.Positions[p.ID]+1 >= sp.Goal {
		sp.Positions[p.ID]++
		sp.WinnerID = p.ID
		s.finishGame(ss)
		*finished = true

		*result = domain.SubmitResult{
			IsCorrect: true,
			Position:  sp.Positions[p.ID],
			Finished:  true,
		}
		telemetry.AnswersSubmitted.WithLabelValues(telemetry.OutcomeCorrect).Inc()

		*events = append(*events, domain.EventFinalSprintUpdate{
			RoomCode:  ss.RoomCode,
			Goal:      sp.Goal,
			Positions: copyPositions(sp.Positions),
		})
		return nil
	}

	sp.Responses[p.ID] = answer
	sp.Order = append(sp.Order, p.ID)

	*result = domain.SubmitResult{
		IsCorrect: correct,
		Position:  sp.Positions[p.ID],
	}
	if correct {
		telemetry.AnswersSubmitted.WithLabelValues(telemetry.OutcomeCorrect).Inc()
	} else {
		telemetry.AnswersSubmitted.WithLabelValues(telemetry.OutcomeWrong).Inc()
	}

	if len(sp.Responses) == len(ss.Players) {
		s.resolveSprintRound(ss, events, finished)
		*result = domain.SubmitResult{
			IsCorrect: correct,
			Position:  sp.Positions[p.ID],
			Finished:  *finished,
		}
	}

	return nil
}

// resolveSprintRound applies the buffered responses: correct responders
// move up one position, the buffer clears, and the next sprint question's
// payload is computed. Exhausting the question list settles the winner by
// highest position, ties by lowest cumulative answer time. Callers hold
// the registry lock.
func (s *Service) resolveSprintRound(ss *domain.Session, events *[]event.Event, finished *bool) {
	sp := ss.Sprint
	q := ss.SprintQuestions[sp.Index]

	for _, id := range sp.Order {
		if sp.Responses[id] != q.CorrectAnswer {
			continue
		}
		sp.Positions[id]++
		if sp.WinnerID == "" && sp.Positions[id] >= sp.Goal {
			sp.WinnerID = id
		}
	}

	sp.Responses = make(map[string]string)
	sp.Order = nil
	sp.Index++

	switch {
	case sp.WinnerID != "":
		s.finishGame(ss)
		*finished = true
		*events = append(*events, domain.EventFinalSprintUpdate{
			RoomCode:  ss.RoomCode,
			Goal:      sp.Goal,
			Positions: copyPositions(sp.Positions),
		})

	case sp.Index >= len(ss.SprintQuestions):
		sp.WinnerID = s.sprintWinnerByPosition(ss)
		s.finishGame(ss)
		*finished = true
		*events = append(*events, domain.EventFinalSprintUpdate{
			RoomCode:  ss.RoomCode,
			Goal:      sp.Goal,
			Positions: copyPositions(sp.Positions),
		})

	default:
		sp.RoundStart = s.clock.Now()
		ss.CurrentPayload = buildPayload(ss.SprintQuestions[sp.Index])
		payload := *ss.CurrentPayload
		payload.TimeRemaining = int(sp.TimeLimit.Seconds())
		*events = append(*events, domain.EventFinalSprintUpdate{
			RoomCode:  ss.RoomCode,
			Goal:      sp.Goal,
			Positions: copyPositions(sp.Positions),
			Question:  &payload,
		})
	}
}

// sprintWinnerByPosition picks the winner when the sprint questions run out
// with nobody at the goal: highest position, ties broken by lowest
// cumulative answer time.
func (s *Service) sprintWinnerByPosition(ss *domain.Session) string {
	sp := ss.Sprint

	var winner *domain.Player
	for id, pos := range sp.Positions {
		p, ok := ss.Players[id]
		if !ok {
			continue
		}
		switch {
		case winner == nil:
			winner = p
		case pos > sp.Positions[winner.ID]:
			winner = p
		case pos == sp.Positions[winner.ID] && p.AnswerTime < winner.AnswerTime:
			winner = p
		}
	}

	if winner == nil {
		return ""
	}
	return winner.ID
}

func copyPositions(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
