package domain

const (
	EventNameRoomCreated        = "room_created"
	EventNamePlayerListUpdated  = "player_list_updated"
	EventNameGameStarted        = "game_started"
	EventNameQuestionStarted    = "question_started"
	EventNameAllPlayersAnswered = "all_players_answered"
	EventNameAnswerRevealed     = "answer_revealed"
	EventNameFinalSprintStarted = "final_sprint_started"
	EventNameFinalSprintUpdate  = "final_sprint_update"
	EventNameGameFinished       = "game_finished"
)

type EventRoomCreated struct {
	RoomCode string
}

func (EventRoomCreated) Name() string { return EventNameRoomCreated }

type PlayerListing struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Score  int          `json:"score"`
	Status PlayerStatus `json:"status"`
}

type EventPlayerListUpdated struct {
	RoomCode string
	Players  []PlayerListing
}

func (EventPlayerListUpdated) Name() string { return EventNamePlayerListUpdated }

type EventGameStarted struct {
	RoomCode string
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

// EventQuestionStarted carries both payload variants; the transport decides
// which one a given subscriber may see.
type EventQuestionStarted struct {
	RoomCode   string
	Question   QuestionPayload
	Privileged QuestionPayload
}

func (EventQuestionStarted) Name() string { return EventNameQuestionStarted }

type EventAllPlayersAnswered struct {
	RoomCode string
}

func (EventAllPlayersAnswered) Name() string { return EventNameAllPlayersAnswered }

type EventAnswerRevealed struct {
	RoomCode      string
	CorrectAnswer string
	VoteStats     []VoteStat
}

func (EventAnswerRevealed) Name() string { return EventNameAnswerRevealed }

type EventFinalSprintStarted struct {
	RoomCode  string
	Goal      int
	Positions map[string]int
	Question  QuestionPayload
}

func (EventFinalSprintStarted) Name() string { return EventNameFinalSprintStarted }

type EventFinalSprintUpdate struct {
	RoomCode  string
	Goal      int
	Positions map[string]int
	Question  *QuestionPayload
}

func (EventFinalSprintUpdate) Name() string { return EventNameFinalSprintUpdate }

type EventGameFinished struct {
	RoomCode string
	Summary  Summary
}

func (EventGameFinished) Name() string { return EventNameGameFinished }
