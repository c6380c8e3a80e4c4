package domain

import (
	"time"
)

// SessionStatus is the coarse lifecycle of a room.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
)

// Phase is the position of a session inside its state machine.
type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhaseQuestion    Phase = "question"
	PhaseFinalSprint Phase = "final_sprint"
	PhaseFinished    Phase = "finished"
)

// PlayerStatus distinguishes players who act in regular rounds from ghosts,
// who only participate in the final sprint.
type PlayerStatus string

const (
	PlayerAlive PlayerStatus = "alive"
	PlayerGhost PlayerStatus = "ghost"
)

// QuestionType drives the answer timer and the scoring path.
type QuestionType string

const (
	QuestionTrivia         QuestionType = "trivia"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionReceipt        QuestionType = "receipt"
	QuestionRoast          QuestionType = "roast"
	QuestionPoll           QuestionType = "poll"
)

// FreeText reports whether the question expects typed answers and therefore
// runs on the extended timer.
func (t QuestionType) FreeText() bool {
	return t == QuestionReceipt || t == QuestionRoast
}

// Player is owned exclusively by its session; only the session's owning
// services mutate it.
type Player struct {
	ID              string
	Name            string
	Score           int
	Status          PlayerStatus
	AnsweredCurrent bool
	CurrentAnswer   string
	// AnswerTime accumulates the elapsed time of every submitted answer.
	// It only ever grows and is used solely for tie-breaking.
	AnswerTime time.Duration
	// Answers counts accepted submissions; players who never answered rank
	// last among equal scorers.
	Answers  int
	JoinTime time.Time
}

// Question is immutable once handed to the engine by the content provider.
type Question struct {
	ID            int
	Category      string
	Type          QuestionType
	Text          string
	CorrectAnswer string
	WrongAnswers  []string
	Context       string
	Difficulty    int
}

// QuestionPayload is the per-question view handed to clients. Answers hold
// the correct and wrong answers in a shuffled order that is computed once
// per question, so every reader sees the same arrangement. CorrectAnswer is
// populated only on the privileged variant.
type QuestionPayload struct {
	ID            int          `json:"id"`
	Category      string       `json:"category"`
	Type          QuestionType `json:"question_type"`
	Text          string       `json:"question_text"`
	Answers       []string     `json:"answers"`
	Context       string       `json:"context,omitempty"`
	Difficulty    int          `json:"difficulty"`
	TimeRemaining int          `json:"time_remaining"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
}

// SprintState is the final-sprint sub-machine: per-player positions racing
// toward a shared goal, one buffered response per player per round.
type SprintState struct {
	Index      int
	Positions  map[string]int
	Goal       int
	RoundStart time.Time
	TimeLimit  time.Duration
	// Responses buffers the current round; Order preserves submission order
	// for deterministic resolution.
	Responses map[string]string
	Order     []string
	WinnerID  string
}

// Session is the aggregate root for one room.
type Session struct {
	RoomCode  string
	CreatorID string
	Status    SessionStatus
	Phase     Phase

	Players map[string]*Player

	Questions    []Question
	CurrentIndex int
	CurrentStart time.Time
	// CurrentPayload caches the shuffled answer payload for the current
	// question (without time remaining, which is computed lazily).
	CurrentPayload *QuestionPayload
	// AnswerOrder records the order regular-round answers arrived in,
	// consulted for deterministic poll tie-breaking at reveal time.
	AnswerOrder []string

	SprintQuestions []Question
	Sprint          *SprintState

	CreatedAt    time.Time
	LastActivity time.Time

	// AutoAdvancePending guards the one-shot reveal→advance task; it is
	// checked and set only under the registry lock.
	AutoAdvancePending bool
}

// AlivePlayers returns the players still acting in regular rounds.
func (s *Session) AlivePlayers() []*Player {
	ps := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		if p.Status == PlayerAlive {
			ps = append(ps, p)
		}
	}
	return ps
}

// AllAliveAnswered reports whether every alive player has answered the
// current question. False when nobody is alive.
func (s *Session) AllAliveAnswered() bool {
	alive := 0
	for _, p := range s.Players {
		if p.Status != PlayerAlive {
			continue
		}
		alive++
		if !p.AnsweredCurrent {
			return false
		}
	}
	return alive > 0
}

// CurrentQuestion returns the question at the current index, or false when
// the regular list is exhausted.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// LeaderboardEntry is one ranked row. Players with equal score and equal
// cumulative answer time share a rank.
type LeaderboardEntry struct {
	Rank            int     `json:"rank"`
	PlayerID        string  `json:"player_id"`
	Name            string  `json:"name"`
	Score           int     `json:"score"`
	AnsweredCurrent bool    `json:"answered_current"`
	AnswerTime      float64 `json:"answer_time_seconds"`
}

// Leaderboard is the ranked standing of one room.
type Leaderboard struct {
	RoomCode string             `json:"room_code"`
	Entries  []LeaderboardEntry `json:"entries"`
}

// GameStats is the live overview surfaced to hosts and TV screens.
type GameStats struct {
	RoomCode        string        `json:"room_code"`
	Status          SessionStatus `json:"status"`
	Phase           Phase         `json:"phase"`
	TotalPlayers    int           `json:"total_players"`
	CurrentQuestion int           `json:"current_question"`
	TotalQuestions  int           `json:"total_questions"`
	TimeRemaining   int           `json:"time_remaining"`
	PlayersAnswered int           `json:"players_answered"`
}

// Summary is the final wrap-up of a finished game.
type Summary struct {
	Winner          *LeaderboardEntry  `json:"winner,omitempty"`
	TotalPlayers    int                `json:"total_players"`
	TotalQuestions  int                `json:"total_questions"`
	AverageScore    float64            `json:"average_score"`
	Leaderboard     []LeaderboardEntry `json:"leaderboard"`
	DurationMinutes int                `json:"game_duration"`
	RoastLevel      string             `json:"roast_level"`
}

// VoteStat is the tally of one distinct poll answer text.
type VoteStat struct {
	Answer string `json:"answer"`
	Votes  int    `json:"votes"`
}

// SubmitResult is the typed outcome of one answer submission.
type SubmitResult struct {
	IsCorrect    bool `json:"is_correct"`
	IsPoll       bool `json:"is_poll"`
	PointsEarned int  `json:"points_earned"`
	TotalScore   int  `json:"total_score"`

	// Sprint fields, populated only during the final sprint.
	Position int  `json:"position,omitempty"`
	Finished bool `json:"finished,omitempty"`
}
