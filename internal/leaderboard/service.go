package leaderboard

import (
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/room"
)

type Config struct {
	Registry *room.Registry
	Clock    clockwork.Clock
}

// Service is the pure query surface over a room's standings: leaderboard,
// live stats and the end-of-game summary. It never mutates session state.
type Service struct {
	reg   *room.Registry
	clock clockwork.Clock
}

func NewService(c Config) *Service {
	return &Service{
		reg:   c.Registry,
		clock: c.Clock,
	}
}

type GetLeaderboardRequest struct {
	RoomCode string
}

// GetLeaderboard returns the ranked standing of a room. Players are ordered
// by score descending, then cumulative answer time ascending; players who
// never answered rank last among equal scorers. Equal score-and-time
// players share a rank.
func (s *Service) GetLeaderboard(req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	var entries []domain.LeaderboardEntry
	err := s.reg.View(req.RoomCode, func(ss *domain.Session) error {
		entries = rank(ss)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.Leaderboard{
		RoomCode: req.RoomCode,
		Entries:  entries,
	}, nil
}

func rank(ss *domain.Session) []domain.LeaderboardEntry {
	players := make([]*domain.Player, 0, len(ss.Players))
	for _, p := range ss.Players {
		players = append(players, p)
	}

	sort.Slice(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if (a.Answers == 0) != (b.Answers == 0) {
			return b.Answers == 0
		}
		if a.AnswerTime != b.AnswerTime {
			return a.AnswerTime < b.AnswerTime
		}
		return a.Name < b.Name
	})

	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for i, p := range players {
		rank := i + 1
		if i > 0 {
			prev := players[i-1]
			if prev.Score == p.Score && prev.AnswerTime == p.AnswerTime && (prev.Answers == 0) == (p.Answers == 0) {
				rank = entries[i-1].Rank
			}
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:            rank,
			PlayerID:        p.ID,
			Name:            p.Name,
			Score:           p.Score,
			AnsweredCurrent: p.AnsweredCurrent,
			AnswerTime:      p.AnswerTime.Seconds(),
		})
	}
	return entries
}

type GetGameStatsRequest struct {
	RoomCode      string
	TimeRemaining int
}

// GetGameStats returns the live overview of a room. TimeRemaining is passed
// in by the flow controller, which owns the timer rules.
func (s *Service) GetGameStats(req GetGameStatsRequest) (*domain.GameStats, error) {
	var stats domain.GameStats
	err := s.reg.View(req.RoomCode, func(ss *domain.Session) error {
		answered := 0
		for _, p := range ss.Players {
			if p.AnsweredCurrent {
				answered++
			}
		}
		stats = domain.GameStats{
			RoomCode:        ss.RoomCode,
			Status:          ss.Status,
			Phase:           ss.Phase,
			TotalPlayers:    len(ss.Players),
			CurrentQuestion: ss.CurrentIndex + 1,
			TotalQuestions:  len(ss.Questions),
			TimeRemaining:   req.TimeRemaining,
			PlayersAnswered: answered,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

type GetSummaryRequest struct {
	RoomCode string
}

// GetSummary builds the final wrap-up of a game: winner, full leaderboard
// and a few flavor stats.
func (s *Service) GetSummary(req GetSummaryRequest) (*domain.Summary, error) {
	var sum domain.Summary
	err := s.reg.View(req.RoomCode, func(ss *domain.Session) error {
		sum = summarize(ss, s.clock.Now().Sub(ss.CreatedAt))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func summarize(ss *domain.Session, elapsed time.Duration) domain.Summary {
	entries := rank(ss)

	sum := domain.Summary{
		TotalPlayers:    len(entries),
		TotalQuestions:  len(ss.Questions),
		Leaderboard:     entries,
		DurationMinutes: int(elapsed.Minutes()),
		RoastLevel:      "Mild",
	}
	if len(ss.Questions) > 15 {
		sum.RoastLevel = "Savage"
	}

	if len(entries) > 0 {
		total := 0
		for _, e := range entries {
			total += e.Score
		}
		sum.AverageScore = float64(total) / float64(len(entries))

		winner := entries[0]
		// A sprint winner outranks the score leaderboard.
		if ss.Sprint != nil && ss.Sprint.WinnerID != "" {
			for _, e := range entries {
				if e.PlayerID == ss.Sprint.WinnerID {
					winner = e
					break
				}
			}
		}
		sum.Winner = &winner
	}

	return sum
}
