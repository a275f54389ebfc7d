package session

import (
	"context"

	"cosmossdk.io/log"

	"github.com/openalpha/classdex/engine"
	"github.com/openalpha/classdex/metrics"
)

const cmdQueueSize = 256

// Session is one live game room: the engine state plus the set of
// connections watching it. All mutation flows through a single worker
// goroutine, so neither the game nor the books need locks.
type Session struct {
	code string
	game *engine.Game

	// conns is owned by the worker goroutine; only command execs touch it.
	conns map[string]Conn
	cmds  chan command

	logger  log.Logger
	metrics *metrics.Collector
}

func newSession(code string, clickSize int64, bookEngine string, logger log.Logger) *Session {
	return &Session{
		code:    code,
		game:    engine.NewGame(code, clickSize, bookEngine, logger),
		conns:   make(map[string]Conn),
		cmds:    make(chan command, cmdQueueSize),
		logger:  logger.With("session", code),
		metrics: metrics.GetCollector(),
	}
}

// Code returns the session's join code.
func (s *Session) Code() string {
	return s.code
}

// run drains the command queue until the context ends. Commands execute
// one at a time in arrival order.
func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			cmd.exec(s)
		}
	}
}

// enqueue hands a command to the worker. The send blocks when the queue
// is full, which backpressures the producing read pump.
func (s *Session) enqueue(cmd command) {
	s.cmds <- cmd
}

// Query runs fn on the worker goroutine and returns its result. REST
// reads use this to observe game state without racing the matcher.
func (s *Session) Query(fn func(g *engine.Game) any) any {
	reply := make(chan any, 1)
	s.enqueue(queryCmd{fn: fn, reply: reply})
	return <-reply
}
