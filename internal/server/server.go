package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/groupchat-games/trivia/internal/api"
	"github.com/groupchat-games/trivia/internal/auth"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/game"
	"github.com/groupchat-games/trivia/internal/janitor"
	"github.com/groupchat-games/trivia/internal/leaderboard"
	"github.com/groupchat-games/trivia/internal/room"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Game struct {
		QuestionTimer time.Duration
		ExtendedTimer time.Duration
		SprintTimer   time.Duration
		RevealDelay   time.Duration
		DisplayTime   time.Duration
	}

	Janitor struct {
		Interval time.Duration
		TTL      time.Duration
	}
}

type Server struct {
	c Config

	eb    *event.Bus
	clock clockwork.Clock

	service struct {
		registry    *room.Registry
		game        *game.Service
		leaderboard *leaderboard.Service
	}

	binder  *auth.Binder
	janitor *janitor.Janitor

	http *http.Server

	cancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	s.clock = clockwork.NewRealClock()

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initService() {
	s.service.registry = room.NewRegistry(room.Config{
		EventBus: s.eb,
		Clock:    s.clock,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Registry: s.service.registry,
		Clock:    s.clock,
	})

	s.service.game = game.NewService(game.Config{
		Registry:      s.service.registry,
		EventBus:      s.eb,
		Leaderboard:   s.service.leaderboard,
		Clock:         s.clock,
		QuestionTimer: s.c.Game.QuestionTimer,
		ExtendedTimer: s.c.Game.ExtendedTimer,
		SprintTimer:   s.c.Game.SprintTimer,
		RevealDelay:   s.c.Game.RevealDelay,
		DisplayTime:   s.c.Game.DisplayTime,
	})

	s.binder = auth.NewBinder()

	s.janitor = janitor.New(janitor.Config{
		Registry: s.service.registry,
		Clock:    s.clock,
		Interval: s.c.Janitor.Interval,
		TTL:      s.c.Janitor.TTL,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:      e,
		EventBus:    s.eb,
		Registry:    s.service.registry,
		Game:        s.service.game,
		Leaderboard: s.service.leaderboard,
		Binder:      s.binder,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		s.janitor.Run(ctx)
		return nil
	})

	err := eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.cancel != nil {
		s.cancel()
	}

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
