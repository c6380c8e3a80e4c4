package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/groupchat-games/trivia/internal/auth"
	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/errors"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/game"
	"github.com/groupchat-games/trivia/internal/leaderboard"
	"github.com/groupchat-games/trivia/internal/room"
)

// playerHeader carries the requester's player id on host-driven calls.
const playerHeader = "X-Player-ID"

type Config struct {
	Engine      *gin.Engine
	EventBus    *event.Bus
	Registry    *room.Registry
	Game        *game.Service
	Leaderboard *leaderboard.Service
	Binder      *auth.Binder
}

// API is the HTTP+WebSocket transport over the engine. It owns no game
// state: every handler translates a request into an engine call and the
// engine's typed error into an HTTP status.
type API struct {
	reg    *room.Registry
	game   *game.Service
	lb     *leaderboard.Service
	binder *auth.Binder
	hub    *Hub
}

func New(c Config) *API {
	a := &API{
		reg:    c.Registry,
		game:   c.Game,
		lb:     c.Leaderboard,
		binder: c.Binder,
	}
	a.hub = newHub(hubConfig{
		EventBus: c.EventBus,
		Registry: c.Registry,
		Game:     c.Game,
		Binder:   c.Binder,
	})

	g := c.Engine.Group("/api/game")
	g.POST("/create", a.createGame)
	g.POST("/join", a.joinGame)
	g.POST("/start/:room", a.startGame)
	g.POST("/next/:room", a.nextQuestion)
	g.POST("/answer", a.submitAnswer)
	g.POST("/ghost/:room", a.ghostPlayer)
	g.GET("/question/:room", a.currentQuestion)
	g.GET("/leaderboard/:room", a.getLeaderboard)
	g.GET("/stats/:room", a.getStats)
	g.GET("/summary/:room", a.getSummary)
	g.GET("/player-session/:player", a.playerSession)

	c.Engine.GET("/ws", a.hub.serveWS)

	return a
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.JSON(e.HTTPStatusCode(), gin.H{
		"success": false,
		"message": e.Message,
	})
}

// QuestionInput is the content provider's wire shape for one question.
type QuestionInput struct {
	ID            int      `json:"id"`
	Category      string   `json:"category"`
	Type          string   `json:"question_type"`
	Text          string   `json:"question_text"`
	CorrectAnswer string   `json:"correct_answer"`
	WrongAnswers  []string `json:"wrong_answers"`
	Context       string   `json:"context"`
	Difficulty    int      `json:"difficulty"`
}

func toQuestions(in []QuestionInput) []domain.Question {
	qs := make([]domain.Question, 0, len(in))
	for _, q := range in {
		qs = append(qs, domain.Question{
			ID:            q.ID,
			Category:      q.Category,
			Type:          domain.QuestionType(q.Type),
			Text:          q.Text,
			CorrectAnswer: q.CorrectAnswer,
			WrongAnswers:  q.WrongAnswers,
			Context:       q.Context,
			Difficulty:    q.Difficulty,
		})
	}
	return qs
}

func (a *API) createGame(c *gin.Context) {
	var req struct {
		Questions       []QuestionInput `json:"questions"`
		SprintQuestions []QuestionInput `json:"sprint_questions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err),
			errors.WithMessagef("malformed request body")))
		return
	}

	code, err := a.reg.CreateSession(c.Request.Context(), room.CreateSessionRequest{
		Questions:       toQuestions(req.Questions),
		SprintQuestions: toQuestions(req.SprintQuestions),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"room_code": code,
	})
}

func (a *API) joinGame(c *gin.Context) {
	var req struct {
		RoomCode   string `json:"room_code"`
		PlayerName string `json:"player_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err),
			errors.WithMessagef("malformed request body")))
		return
	}

	resp, err := a.reg.JoinSession(c.Request.Context(), room.JoinSessionRequest{
		RoomCode:   req.RoomCode,
		PlayerName: req.PlayerName,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"player_id": resp.PlayerID,
		"room_code": resp.RoomCode,
		"creator":   resp.Creator,
	})
}

func (a *API) startGame(c *gin.Context) {
	err := a.game.StartGame(c.Request.Context(), game.StartGameRequest{
		RoomCode:    strings.ToUpper(c.Param("room")),
		RequesterID: c.GetHeader(playerHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) nextQuestion(c *gin.Context) {
	err := a.game.AdvanceQuestion(c.Request.Context(), game.AdvanceRequest{
		RoomCode:    strings.ToUpper(c.Param("room")),
		RequesterID: c.GetHeader(playerHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) submitAnswer(c *gin.Context) {
	var req struct {
		PlayerID string `json:"player_id"`
		Answer   string `json:"answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PlayerID == "" || req.Answer == "" {
		writeError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("player_id and answer are required")))
		return
	}

	result, err := a.game.SubmitAnswer(c.Request.Context(), game.SubmitAnswerRequest{
		PlayerID: req.PlayerID,
		Answer:   req.Answer,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (a *API) ghostPlayer(c *gin.Context) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("player_id is required")))
		return
	}

	err := a.game.GhostPlayer(c.Request.Context(), game.GhostPlayerRequest{
		RoomCode:    strings.ToUpper(c.Param("room")),
		RequesterID: c.GetHeader(playerHeader),
		PlayerID:    req.PlayerID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// currentQuestion serves the redacted payload. The privileged variant,
// including the correct answer, goes only to the room's creator.
func (a *API) currentQuestion(c *gin.Context) {
	roomCode := strings.ToUpper(c.Param("room"))
	requester := c.GetHeader(playerHeader)

	privileged := false
	if requester != "" {
		err := a.reg.View(roomCode, func(ss *domain.Session) error {
			privileged = ss.CreatorID == requester
			return nil
		})
		if err != nil {
			writeError(c, err)
			return
		}
	}

	payload, err := a.game.GetCurrentQuestion(game.GetQuestionRequest{
		RoomCode:   roomCode,
		Privileged: privileged,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"question": payload,
	})
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.lb.GetLeaderboard(leaderboard.GetLeaderboardRequest{
		RoomCode: strings.ToUpper(c.Param("room")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": l.Entries})
}

func (a *API) getStats(c *gin.Context) {
	roomCode := strings.ToUpper(c.Param("room"))

	remaining, err := a.game.TimeRemaining(roomCode)
	if err != nil {
		writeError(c, err)
		return
	}

	stats, err := a.lb.GetGameStats(leaderboard.GetGameStatsRequest{
		RoomCode:      roomCode,
		TimeRemaining: remaining,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) getSummary(c *gin.Context) {
	sum, err := a.lb.GetSummary(leaderboard.GetSummaryRequest{
		RoomCode: strings.ToUpper(c.Param("room")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": sum,
	})
}

func (a *API) playerSession(c *gin.Context) {
	playerID := c.Param("player")

	roomCode, err := a.reg.PlayerRoom(playerID)
	if err != nil {
		writeError(c, err)
		return
	}

	var resp gin.H
	err = a.reg.View(roomCode, func(ss *domain.Session) error {
		resp = gin.H{
			"room_code":    ss.RoomCode,
			"status":       ss.Status,
			"phase":        ss.Phase,
			"player_count": len(ss.Players),
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": resp,
	})
}
