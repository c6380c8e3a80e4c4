package room

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/errors"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/telemetry"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	maxNameLength = 50
)

type Config struct {
	EventBus *event.Bus
	Clock    clockwork.Clock
}

// Registry owns the room-code → session map and is the single mutation
// authority for session state. All reads and writes of a session's mutable
// fields go through View/Mutate so concurrent request handlers always
// observe a consistent snapshot.
type Registry struct {
	eb    *event.Bus
	clock clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*domain.Session
	// players is a non-owning player-id → room-code index, pruned whenever
	// its session is destroyed.
	players map[string]string
}

func NewRegistry(c Config) *Registry {
	return &Registry{
		eb:       c.EventBus,
		clock:    c.Clock,
		sessions: make(map[string]*domain.Session),
		players:  make(map[string]string),
	}
}

type CreateSessionRequest struct {
	Questions       []domain.Question
	SprintQuestions []domain.Question
}

// CreateSession validates the question lists' structural shape, allocates a
// session under a fresh room code and returns the code. The session starts
// empty in the waiting phase.
func (r *Registry) CreateSession(ctx context.Context, req CreateSessionRequest) (string, error) {
	if len(req.Questions) == 0 {
		return "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("a game needs at least one question"))
	}

	for _, q := range append(append([]domain.Question{}, req.Questions...), req.SprintQuestions...) {
		if err := validateQuestion(q); err != nil {
			return "", err
		}
	}

	now := r.clock.Now()

	r.mu.Lock()
	code := r.generateRoomCode()
	r.sessions[code] = &domain.Session{
		RoomCode:        code,
		Status:          domain.StatusWaiting,
		Phase:           domain.PhaseWaiting,
		Players:         make(map[string]*domain.Player),
		Questions:       req.Questions,
		SprintQuestions: req.SprintQuestions,
		CreatedAt:       now,
		LastActivity:    now,
	}
	r.mu.Unlock()

	telemetry.ActiveSessions.Inc()
	r.eb.Publish(ctx, domain.EventRoomCreated{RoomCode: code})

	return code, nil
}

// generateRoomCode retries until the code is unique among active rooms.
// Callers must hold r.mu.
func (r *Registry) generateRoomCode() string {
	buf := make([]byte, codeLength)
	for {
		for i := range buf {
			buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
		}
		code := string(buf)
		if _, taken := r.sessions[code]; !taken {
			return code
		}
	}
}

func validateQuestion(q domain.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %d has no text", q.ID))
	}
	if strings.TrimSpace(q.CorrectAnswer) == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %d has no correct answer", q.ID))
	}
	if len(q.WrongAnswers) < 2 || len(q.WrongAnswers) > 3 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %d needs 2-3 wrong answers, got %d", q.ID, len(q.WrongAnswers)))
	}
	seen := make(map[string]struct{}, len(q.WrongAnswers))
	for _, w := range q.WrongAnswers {
		if _, dup := seen[w]; dup {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question %d has duplicate wrong answers", q.ID))
		}
		seen[w] = struct{}{}
	}
	return nil
}

type JoinSessionRequest struct {
	RoomCode   string
	PlayerName string
}

type JoinSessionResponse struct {
	PlayerID string
	RoomCode string
	Creator  bool
}

// JoinSession adds a player to a waiting room. The first successful joiner
// becomes the room's creator. Player ids are UUIDs so they cannot be
// guessed from earlier ids.
func (r *Registry) JoinSession(ctx context.Context, req JoinSessionRequest) (*JoinSessionResponse, error) {
	name := strings.TrimSpace(req.PlayerName)
	if name == "" || len(name) > maxNameLength {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("player name must be 1-%d characters", maxNameLength))
	}

	code := strings.ToUpper(strings.TrimSpace(req.RoomCode))
	now := r.clock.Now()

	r.mu.Lock()
	s, ok := r.sessions[code]
	if !ok {
		r.mu.Unlock()
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("room %s not found", code))
	}

	if s.Status != domain.StatusWaiting {
		r.mu.Unlock()
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("game in room %s is already in progress", code))
	}

	for _, p := range s.Players {
		if strings.EqualFold(p.Name, name) {
			r.mu.Unlock()
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("name %q is already taken", name))
		}
	}

	p := &domain.Player{
		ID:       uuid.New().String(),
		Name:     name,
		Status:   domain.PlayerAlive,
		JoinTime: now,
	}
	s.Players[p.ID] = p
	r.players[p.ID] = code
	if s.CreatorID == "" {
		s.CreatorID = p.ID
	}
	s.LastActivity = now

	resp := &JoinSessionResponse{
		PlayerID: p.ID,
		RoomCode: code,
		Creator:  s.CreatorID == p.ID,
	}
	listing := playerListing(s)
	r.mu.Unlock()

	telemetry.PlayersJoined.Inc()
	r.eb.Publish(ctx, domain.EventPlayerListUpdated{
		RoomCode: code,
		Players:  listing,
	})

	return resp, nil
}

// playerListing snapshots the player list, ordered by join time so the
// lobby renders stably. Callers must hold r.mu.
func playerListing(s *domain.Session) []domain.PlayerListing {
	ps := make([]*domain.Player, 0, len(s.Players))
	for _, p := range s.Players {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].JoinTime.Before(ps[j].JoinTime) })

	listing := make([]domain.PlayerListing, 0, len(ps))
	for _, p := range ps {
		listing = append(listing, domain.PlayerListing{
			ID:     p.ID,
			Name:   p.Name,
			Score:  p.Score,
			Status: p.Status,
		})
	}
	return listing
}

// Mutate runs fn on the session under the registry lock and, on success,
// touches the session's last-activity timestamp.
func (r *Registry) Mutate(roomCode string, fn func(*domain.Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[roomCode]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("room %s not found", roomCode))
	}

	if err := fn(s); err != nil {
		return err
	}
	s.LastActivity = r.clock.Now()
	return nil
}

// View runs fn on the session under the registry lock without touching
// last-activity. fn must not mutate the session.
func (r *Registry) View(roomCode string, fn func(*domain.Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[roomCode]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("room %s not found", roomCode))
	}
	return fn(s)
}

// PlayerRoom resolves a player id to its room code through the non-owning
// index.
func (r *Registry) PlayerRoom(playerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.players[playerID]
	if !ok {
		return "", errors.New(errors.CodeNotFound,
			errors.WithMessagef("player %s is not in any room", playerID))
	}
	return code, nil
}

// PlayerListing returns the lobby view of a room's players.
func (r *Registry) PlayerListing(roomCode string) ([]domain.PlayerListing, error) {
	var listing []domain.PlayerListing
	err := r.View(roomCode, func(s *domain.Session) error {
		listing = playerListing(s)
		return nil
	})
	return listing, err
}

// EndSession destroys a session and prunes its entries from the player
// index.
func (r *Registry) EndSession(roomCode string) error {
	r.mu.Lock()
	s, ok := r.sessions[roomCode]
	if !ok {
		r.mu.Unlock()
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("room %s not found", roomCode))
	}
	for id := range s.Players {
		delete(r.players, id)
	}
	delete(r.sessions, roomCode)
	r.mu.Unlock()

	telemetry.ActiveSessions.Dec()
	return nil
}

// RoomCodes lists the codes of all active rooms.
func (r *Registry) RoomCodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := make([]string, 0, len(r.sessions))
	for code := range r.sessions {
		codes = append(codes, code)
	}
	return codes
}

// IdleSince returns how long ago the session last saw a mutating call.
func (r *Registry) IdleSince(roomCode string) (time.Duration, error) {
	var idle time.Duration
	err := r.View(roomCode, func(s *domain.Session) error {
		idle = r.clock.Now().Sub(s.LastActivity)
		return nil
	})
	return idle, err
}
