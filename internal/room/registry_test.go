package room_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupchat-games/trivia/internal/domain"
	"github.com/groupchat-games/trivia/internal/errors"
	"github.com/groupchat-games/trivia/internal/event"
	"github.com/groupchat-games/trivia/internal/room"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestRegistry_CreateSession(t *testing.T) {
	tests := map[string]struct {
		arrange func() room.CreateSessionRequest
		assert  func(t *testing.T, code string, err error)
	}{
		"valid questions yield a six character room code": {
			arrange: func() room.CreateSessionRequest {
				return room.CreateSessionRequest{Questions: validQuestions(3)}
			},
			assert: func(t *testing.T, code string, err error) {
				require.NoError(t, err)
				assert.Regexp(t, codePattern, code)
			},
		},

		"empty question list is rejected": {
			arrange: func() room.CreateSessionRequest {
				return room.CreateSessionRequest{}
			},
			assert: func(t *testing.T, code string, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			},
		},

		"question without text is rejected": {
			arrange: func() room.CreateSessionRequest {
				qs := validQuestions(1)
				qs[0].Text = "   "
				return room.CreateSessionRequest{Questions: qs}
			},
			assert: func(t *testing.T, code string, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			},
		},

		"question without a correct answer is rejected": {
			arrange: func() room.CreateSessionRequest {
				qs := validQuestions(1)
				qs[0].CorrectAnswer = ""
				return room.CreateSessionRequest{Questions: qs}
			},
			assert: func(t *testing.T, code string, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			},
		},

		"too few wrong answers is rejected": {
			arrange: func() room.CreateSessionRequest {
				qs := validQuestions(1)
				qs[0].WrongAnswers = []string{"only one"}
				return room.CreateSessionRequest{Questions: qs}
			},
			assert: func(t *testing.T, code string, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			},
		},

		"duplicate wrong answers are rejected": {
			arrange: func() room.CreateSessionRequest {
				qs := validQuestions(1)
				qs[0].WrongAnswers = []string{"dup", "dup"}
				return room.CreateSessionRequest{Questions: qs}
			},
			assert: func(t *testing.T, code string, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			},
		},

		"sprint questions are validated too": {
			arrange: func() room.CreateSessionRequest {
				sq := validQuestions(1)
				sq[0].CorrectAnswer = ""
				return room.CreateSessionRequest{
					Questions:       validQuestions(2),
					SprintQuestions: sq,
				}
			},
			assert: func(t *testing.T, code string, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := makeRegistry(t)
			code, err := r.CreateSession(context.Background(), tt.arrange())
			tt.assert(t, code, err)
		})
	}
}

func TestRegistry_CreateSession_UniqueCodes(t *testing.T) {
	t.Parallel()

	r := makeRegistry(t)

	const n = 64
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := r.CreateSession(context.Background(), room.CreateSessionRequest{
				Questions: validQuestions(1),
			})
			assert.NoError(t, err)
			mu.Lock()
			codes[code] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, codes, n, "concurrently created rooms must not share codes")
}

func TestRegistry_JoinSession(t *testing.T) {
	type inputs struct {
		reg   *room.Registry
		code  string
		joins []string
	}

	tests := map[string]struct {
		arrange func(t *testing.T) inputs
		join    room.JoinSessionRequest
		assert  func(t *testing.T, in inputs, resp *room.JoinSessionResponse, err error)
	}{
		"first joiner becomes the creator": {
			arrange: func(t *testing.T) inputs {
				r, code := makeRoom(t)
				return inputs{reg: r, code: code}
			},
			join: room.JoinSessionRequest{PlayerName: "Ann"},
			assert: func(t *testing.T, in inputs, resp *room.JoinSessionResponse, err error) {
				require.NoError(t, err)
				assert.True(t, resp.Creator)
				assert.NotEmpty(t, resp.PlayerID)
			},
		},

		"second joiner is not the creator": {
			arrange: func(t *testing.T) inputs {
				r, code := makeRoom(t)
				return inputs{reg: r, code: code, joins: []string{"Ann"}}
			},
			join: room.JoinSessionRequest{PlayerName: "Bob"},
			assert: func(t *testing.T, in inputs, resp *room.JoinSessionResponse, err error) {
				require.NoError(t, err)
				assert.False(t, resp.Creator)
			},
		},

		"room code is matched case insensitively": {
			arrange: func(t *testing.T) inputs {
				r, code := makeRoom(t)
				return inputs{reg: r, code: code}
			},
			join: room.JoinSessionRequest{PlayerName: "Ann"},
			assert: func(t *testing.T, in inputs, resp *room.JoinSessionResponse, err error) {
				require.NoError(t, err)
				assert.Equal(t, in.code, resp.RoomCode)
			},
		},

		"duplicate name differing only in case is rejected": {
			arrange: func(t *testing.T) inputs {
				r, code := makeRoom(t)
				return inputs{reg: r, code: code, joins: []string{"Ann"}}
			},
			join: room.JoinSessionRequest{PlayerName: "ann"},
			assert: func(t *testing.T, in inputs, resp *room.JoinSessionResponse, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			},
		},

		"blank name is rejected": {
			arrange: func(t *testing.T) inputs {
				r, code := makeRoom(t)
				return inputs{reg: r, code: code}
			},
			join: room.JoinSessionRequest{PlayerName: "   "},
			assert: func(t *testing.T, in inputs, resp *room.JoinSessionResponse, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
			},
		},

		"unknown room is not found": {
			arrange: func(t *testing.T) inputs {
				r := makeRegistry(t)
				return inputs{reg: r, code: "ZZZZZZ"}
			},
			join: room.JoinSessionRequest{PlayerName: "Ann"},
			assert: func(t *testing.T, in inputs, resp *room.JoinSessionResponse, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeNotFound))
			},
		},

		"joining a started game is rejected": {
			arrange: func(t *testing.T) inputs {
				r, code := makeRoom(t)
				mustJoin(t, r, code, "Ann")
				require.NoError(t, r.Mutate(code, func(s *domain.Session) error {
					s.Status = domain.StatusPlaying
					return nil
				}))
				return inputs{reg: r, code: code}
			},
			join: room.JoinSessionRequest{PlayerName: "Bob"},
			assert: func(t *testing.T, in inputs, resp *room.JoinSessionResponse, err error) {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeFailedPrecondition))
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange(t)
			for _, n := range in.joins {
				mustJoin(t, in.reg, in.code, n)
			}

			req := tt.join
			if req.RoomCode == "" {
				req.RoomCode = in.code
			}
			resp, err := in.reg.JoinSession(context.Background(), req)
			tt.assert(t, in, resp, err)
		})
	}
}

func TestRegistry_PlayerRoom(t *testing.T) {
	t.Parallel()

	r, code := makeRoom(t)
	ann := mustJoin(t, r, code, "Ann")

	got, err := r.PlayerRoom(ann)
	require.NoError(t, err)
	assert.Equal(t, code, got)

	_, err = r.PlayerRoom("nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestRegistry_PlayerListing_OrderedByJoinTime(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClock()
	r := makeRegistry(t, withClock(fc))
	code, err := r.CreateSession(context.Background(), room.CreateSessionRequest{
		Questions: validQuestions(1),
	})
	require.NoError(t, err)

	for _, name := range []string{"Cleo", "Ann", "Bob"} {
		mustJoin(t, r, code, name)
		fc.Advance(time.Second)
	}

	listing, err := r.PlayerListing(code)
	require.NoError(t, err)
	require.Len(t, listing, 3)
	assert.Equal(t, "Cleo", listing[0].Name)
	assert.Equal(t, "Ann", listing[1].Name)
	assert.Equal(t, "Bob", listing[2].Name)
}

func TestRegistry_EndSession(t *testing.T) {
	t.Parallel()

	r, code := makeRoom(t)
	ann := mustJoin(t, r, code, "Ann")

	require.NoError(t, r.EndSession(code))

	err := r.View(code, func(*domain.Session) error { return nil })
	assert.True(t, errors.IsCode(err, errors.CodeNotFound), "session should be gone")

	_, err = r.PlayerRoom(ann)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound), "player index should be pruned")

	assert.True(t, errors.IsCode(r.EndSession(code), errors.CodeNotFound))
}

func TestRegistry_IdleSince(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClock()
	r := makeRegistry(t, withClock(fc))
	code, err := r.CreateSession(context.Background(), room.CreateSessionRequest{
		Questions: validQuestions(1),
	})
	require.NoError(t, err)

	fc.Advance(10 * time.Minute)

	idle, err := r.IdleSince(code)
	require.NoError(t, err)
	assert.NotZero(t, idle)

	// A mutation resets the idle clock.
	require.NoError(t, r.Mutate(code, func(*domain.Session) error { return nil }))
	idle, err = r.IdleSince(code)
	require.NoError(t, err)
	assert.Zero(t, idle)
}

func makeRegistry(t *testing.T, opts ...options) *room.Registry {
	t.Helper()

	c := room.Config{
		EventBus: event.NewBus(),
		Clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return room.NewRegistry(c)
}

func makeRoom(t *testing.T, opts ...options) (*room.Registry, string) {
	t.Helper()

	r := makeRegistry(t, opts...)
	code, err := r.CreateSession(context.Background(), room.CreateSessionRequest{
		Questions: validQuestions(2),
	})
	require.NoError(t, err)
	return r, code
}

func mustJoin(t *testing.T, r *room.Registry, code, name string) string {
	t.Helper()

	resp, err := r.JoinSession(context.Background(), room.JoinSessionRequest{
		RoomCode:   code,
		PlayerName: name,
	})
	require.NoError(t, err)
	return resp.PlayerID
}

func validQuestions(n int) []domain.Question {
	qs := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, domain.Question{
			ID:            i + 1,
			Type:          domain.QuestionTrivia,
			Text:          "What is the capital of France?",
			CorrectAnswer: "Paris",
			WrongAnswers:  []string{"Lyon", "Nice", "Lille"},
		})
	}
	return qs
}

type options func(c *room.Config)

func withClock(c clockwork.Clock) options {
	return func(cfg *room.Config) {
		cfg.Clock = c
	}
}
