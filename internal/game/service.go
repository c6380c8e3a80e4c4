package game

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/errors"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/leaderboard"
	"github.com/groupchat-games/trivia/internal/room"
	"github.com/groupchat-games/trivia/internal/score"
	"github.com/groupchat-games/trivia/internal/telemetry"
)

const (
	defaultQuestionTimer = 30 * time.Second
	defaultExtendedTimer = 60 * time.Second
	defaultSprintTimer   = 20 * time.Second
	defaultRevealDelay   = 5 * time.Second
	defaultDisplayTime   = 5 * time.Second
)

type Config struct {
	Registry    *room.Registry
	EventBus    *event.Bus
	Leaderboard *leaderboard.Service
	Clock       clockwork.Clock

	// QuestionTimer limits discrete-choice questions, ExtendedTimer the
	// free-text types, SprintTimer one final-sprint round. Zero values take
	// the defaults.
	QuestionTimer time.Duration
	ExtendedTimer time.Duration
	SprintTimer   time.Duration

	// RevealDelay is the pause between the last answer and the reveal;
	// DisplayTime is how long the reveal stays up before auto-advancing.
	RevealDelay time.Duration
	DisplayTime time.Duration
}

// Service is the question-flow state machine. Phases move
// waiting → question (looping) → final_sprint → finished; every mutation
// runs under the registry lock so concurrent submissions observe a
// consistent "has everyone answered" snapshot.
type Service struct {
	reg   *room.Registry
	eb    *event.Bus
	lb    *leaderboard.Service
	clock clockwork.Clock

	questionTimer time.Duration
	extendedTimer time.Duration
	sprintTimer   time.Duration
	revealDelay   time.Duration
	displayTime   time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		reg:           c.Registry,
		eb:            c.EventBus,
		lb:            c.Leaderboard,
		clock:         c.Clock,
		questionTimer: c.QuestionTimer,
		extendedTimer: c.ExtendedTimer,
		sprintTimer:   c.SprintTimer,
		revealDelay:   c.RevealDelay,
		displayTime:   c.DisplayTime,
	}

	if s.questionTimer <= 0 {
		s.questionTimer = defaultQuestionTimer
	}
	if s.extendedTimer <= 0 {
		s.extendedTimer = defaultExtendedTimer
	}
	if s.sprintTimer <= 0 {
		s.sprintTimer = defaultSprintTimer
	}
	if s.revealDelay <= 0 {
		s.revealDelay = defaultRevealDelay
	}
	if s.displayTime <= 0 {
		s.displayTime = defaultDisplayTime
	}

	return s
}

type StartGameRequest struct {
	RoomCode    string
	RequesterID string
}

// StartGame moves a waiting room into the question phase. Only the creator
// may start, and only with at least one player present.
func (s *Service) StartGame(ctx context.Context, req StartGameRequest) error {
	var started domain.EventQuestionStarted

	err := s.reg.Mutate(req.RoomCode, func(ss *domain.Session) error {
		if ss.CreatorID != req.RequesterID {
			return errors.New(errors.CodePermissionDenied,
				errors.WithMessagef("only the room creator can start the game"))
		}
		if ss.Status != domain.StatusWaiting {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("game in room %s has already started", ss.RoomCode))
		}
		if len(ss.Players) == 0 {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("cannot start a game with no players"))
		}

		ss.Status = domain.StatusPlaying
		ss.Phase = domain.PhaseQuestion
		ss.CurrentIndex = 0
		s.beginQuestion(ss)

		started = s.questionStartedEvent(ss)
		return nil
	})
	if err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventGameStarted{RoomCode: req.RoomCode})
	s.eb.Publish(ctx, started)
	return nil
}

// beginQuestion resets per-round player state, stamps the start time and
// caches the shuffled payload for the question at the current index.
// Callers must hold the registry lock (via Mutate).
func (s *Service) beginQuestion(ss *domain.Session) {
	for _, p := range ss.Players {
		p.AnsweredCurrent = false
		p.CurrentAnswer = ""
	}
	ss.AnswerOrder = nil
	ss.CurrentStart = s.clock.Now()

	q, _ := ss.CurrentQuestion()
	ss.CurrentPayload = buildPayload(q)
}

// buildPayload shuffles the answer choices exactly once so every caller of
// GetCurrentQuestion sees the identical ordering. The correct answer is not
// stored on the cached payload.
func buildPayload(q domain.Question) *domain.QuestionPayload {
	answers := make([]string, 0, 1+len(q.WrongAnswers))
	answers = append(answers, q.CorrectAnswer)
	answers = append(answers, q.WrongAnswers...)
	rand.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})

	return &domain.QuestionPayload{
		ID:         q.ID,
		Category:   q.Category,
		Type:       q.Type,
		Text:       q.Text,
		Answers:    answers,
		Context:    q.Context,
		Difficulty: q.Difficulty,
	}
}

func (s *Service) questionStartedEvent(ss *domain.Session) domain.EventQuestionStarted {
	q, _ := ss.CurrentQuestion()
	pub := *ss.CurrentPayload
	pub.TimeRemaining = s.remainingSeconds(ss)

	priv := pub
	priv.CorrectAnswer = q.CorrectAnswer

	return domain.EventQuestionStarted{
		RoomCode:   ss.RoomCode,
		Question:   pub,
		Privileged: priv,
	}
}

// timeLimit returns the answer window for a question: free-text types get
// the extended timer, everything discrete the short one.
func (s *Service) timeLimit(t domain.QuestionType) time.Duration {
	if t.FreeText() {
		return s.extendedTimer
	}
	return s.questionTimer
}

// remainingSeconds computes time remaining lazily from the clock delta,
// truncated to whole seconds and floored at zero. No timer callback ever
// enforces it; late submissions simply fail the check.
func (s *Service) remainingSeconds(ss *domain.Session) int {
	var limit time.Duration
	var start time.Time

	switch ss.Phase {
	case domain.PhaseQuestion:
		q, ok := ss.CurrentQuestion()
		if !ok {
			return 0
		}
		limit, start = s.timeLimit(q.Type), ss.CurrentStart
	case domain.PhaseFinalSprint:
		if ss.Sprint == nil {
			return 0
		}
		limit, start = ss.Sprint.TimeLimit, ss.Sprint.RoundStart
	default:
		return 0
	}

	left := limit - s.clock.Now().Sub(start)
	if left < 0 {
		left = 0
	}
	return int(left.Seconds())
}

type GetQuestionRequest struct {
	RoomCode string
	// Privileged callers (host/TV surfaces) also receive the correct
	// answer on the payload.
	Privileged bool
}

// GetCurrentQuestion returns the cached payload for the question in play,
// with time remaining computed at call time. Pure query.
func (s *Service) GetCurrentQuestion(req GetQuestionRequest) (*domain.QuestionPayload, error) {
	var payload domain.QuestionPayload

	err := s.reg.View(req.RoomCode, func(ss *domain.Session) error {
		if ss.Status != domain.StatusPlaying || ss.CurrentPayload == nil {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("no question is in play in room %s", ss.RoomCode))
		}

		payload = *ss.CurrentPayload
		payload.TimeRemaining = s.remainingSeconds(ss)

		if req.Privileged {
			switch ss.Phase {
			case domain.PhaseQuestion:
				q, _ := ss.CurrentQuestion()
				payload.CorrectAnswer = q.CorrectAnswer
			case domain.PhaseFinalSprint:
				payload.CorrectAnswer = ss.SprintQuestions[ss.Sprint.Index].CorrectAnswer
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// TimeRemaining is the lazily computed answer window left in the current
// round, in whole seconds.
func (s *Service) TimeRemaining(roomCode string) (int, error) {
	var remaining int
	err := s.reg.View(roomCode, func(ss *domain.Session) error {
		remaining = s.remainingSeconds(ss)
		return nil
	})
	return remaining, err
}

type SubmitAnswerRequest struct {
	PlayerID string
	Answer   string
}

// SubmitAnswer routes a submission by phase: regular rounds score (or
// record poll votes) immediately, the final sprint buffers one response per
// player per round. When the last alive player answers a regular question,
// exactly one delayed reveal→advance task is scheduled.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*domain.SubmitResult, error) {
	code, err := s.reg.PlayerRoom(req.PlayerID)
	if err != nil {
		return nil, err
	}

	var (
		result   domain.SubmitResult
		events   []event.Event
		schedule int = -1 // question index to auto-advance from, -1 for none
		finished bool
	)

	err = s.reg.Mutate(code, func(ss *domain.Session) error {
		p, ok := ss.Players[req.PlayerID]
		if !ok {
			return errors.New(errors.CodeNotFound,
				errors.WithMessagef("player %s not found in room %s", req.PlayerID, code))
		}

		switch ss.Phase {
		case domain.PhaseQuestion:
			return s.submitRegular(ss, p, req.Answer, &result, &events, &schedule)
		case domain.PhaseFinalSprint:
			return s.submitSprint(ss, p, req.Answer, &result, &events, &finished)
		default:
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("room %s is not accepting answers", code))
		}
	})

	// A rejected submission can still have resolved an expired sprint
	// round, so events gathered before the rejection broadcast regardless.
	for _, e := range events {
		s.eb.Publish(ctx, e)
	}
	if finished {
		s.publishFinished(ctx, code)
	}

	if err != nil {
		telemetry.AnswersSubmitted.WithLabelValues(telemetry.OutcomeRejected).Inc()
		return nil, err
	}

	if schedule >= 0 {
		go s.runAutoAdvance(code, schedule)
	}

	return &result, nil
}

// submitRegular handles one answer in the question phase. Callers hold the
// registry lock.
func (s *Service) submitRegular(ss *domain.Session, p *domain.Player, answer string, result *domain.SubmitResult, events *[]event.Event, schedule *int) error {
	if p.Status != domain.PlayerAlive {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("ghosts cannot answer regular questions"))
	}
	if p.AnsweredCurrent {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("player %s already answered this question", p.Name))
	}

	remaining := s.remainingSeconds(ss)
	if remaining <= 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("time is up for this question"))
	}

	q, ok := ss.CurrentQuestion()
	if !ok {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no question is in play"))
	}

	p.AnsweredCurrent = true
	p.CurrentAnswer = answer
	p.AnswerTime += s.clock.Now().Sub(ss.CurrentStart)
	p.Answers++
	ss.AnswerOrder = append(ss.AnswerOrder, answer)

	if q.Type == domain.QuestionPoll {
		// Poll scoring is deferred to reveal time; this is a vote only.
		*result = domain.SubmitResult{IsPoll: true, TotalScore: p.Score}
		telemetry.AnswersSubmitted.WithLabelValues(telemetry.OutcomeVote).Inc()
	} else {
		correct := answer == q.CorrectAnswer
		points := score.Points(correct, remaining)
		p.Score += points
		*result = domain.SubmitResult{
			IsCorrect:    correct,
			PointsEarned: points,
			TotalScore:   p.Score,
		}
		if correct {
			telemetry.AnswersSubmitted.WithLabelValues(telemetry.OutcomeCorrect).Inc()
		} else {
			telemetry.AnswersSubmitted.WithLabelValues(telemetry.OutcomeWrong).Inc()
		}
	}

	// Check-and-set under the lock: two near-simultaneous last answers must
	// not schedule two advances.
	if ss.AllAliveAnswered() && !ss.AutoAdvancePending {
		ss.AutoAdvancePending = true
		*schedule = ss.CurrentIndex
		*events = append(*events, domain.EventAllPlayersAnswered{RoomCode: ss.RoomCode})
	}

	return nil
}

type GhostPlayerRequest struct {
	RoomCode    string
	RequesterID string
	PlayerID    string
}

// GhostPlayer demotes a player to ghost status. Creator only. Ghosts keep
// their score, sit out regular rounds and rejoin for the final sprint at
// the back position. Ghosting the last unanswered player can complete the
// round, so the auto-advance check runs here too.
func (s *Service) GhostPlayer(ctx context.Context, req GhostPlayerRequest) error {
	var (
		listing  []domain.PlayerListing
		schedule = -1
	)

	err := s.reg.Mutate(req.RoomCode, func(ss *domain.Session) error {
		if ss.CreatorID != req.RequesterID {
			return errors.New(errors.CodePermissionDenied,
				errors.WithMessagef("only the room creator can ghost a player"))
		}
		p, ok := ss.Players[req.PlayerID]
		if !ok {
			return errors.New(errors.CodeNotFound,
				errors.WithMessagef("player %s not found in room %s", req.PlayerID, req.RoomCode))
		}

		p.Status = domain.PlayerGhost

		if ss.Phase == domain.PhaseQuestion && ss.AllAliveAnswered() && !ss.AutoAdvancePending {
			ss.AutoAdvancePending = true
			schedule = ss.CurrentIndex
		}
		return nil
	})
	if err != nil {
		return err
	}

	listing, err = s.reg.PlayerListing(req.RoomCode)
	if err == nil {
		s.eb.Publish(ctx, domain.EventPlayerListUpdated{RoomCode: req.RoomCode, Players: listing})
	}
	if schedule >= 0 {
		go s.runAutoAdvance(req.RoomCode, schedule)
	}
	return nil
}

// publishFinished emits the game_finished event with the final summary.
// Called after the mutation that finished the game has released the lock.
func (s *Service) publishFinished(ctx context.Context, roomCode string) {
	sum, err := s.lb.GetSummary(leaderboard.GetSummaryRequest{RoomCode: roomCode})
	if err != nil {
		return
	}
	s.eb.Publish(ctx, domain.EventGameFinished{RoomCode: roomCode, Summary: *sum})
}
