package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrMailboxFull  = errors.New("agent: mailbox full")
	ErrAgentStopped = errors.New("agent: stopped")
)

// Metrics is a point-in-time snapshot of an agent's counters.
type Metrics struct {
	AgentID       string    `json:"agent_id"`
	Role          RoleType  `json:"role"`
	Processed     uint64    `json:"processed"`
	Errors        uint64    `json:"errors"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Uptime        string    `json:"uptime"`
}

// router lets an agent hand outbound messages back to the runtime without
// holding references to other agents.
type router interface {
	route(from string, out []Outbound)
	heartbeat(m Metrics)
}

// Agent hosts one Role on its own goroutine. Messages are delivered in FIFO
// order through a buffered mailbox; a panic or error inside the role is
// contained to the message that caused it, and the heartbeat keeps ticking
// regardless.
type Agent struct {
	ID   string
	role Role

	mailbox chan Message
	rt      router
	log     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	stopped   bool
	processed uint64
	errs      uint64
	startedAt time.Time
	lastBeat  time.Time
}

func newAgent(id string, role Role, mailboxSize int, rt router, log *slog.Logger) *Agent {
	return &Agent{
		ID:      id,
		role:    role,
		mailbox: make(chan Message, mailboxSize),
		rt:      rt,
		log:     log.With("agent_id", id, "role", role.Type()),
		done:    make(chan struct{}),
	}
}

// start initializes the role and launches the mailbox loop. Initialize
// failure means the agent never starts.
func (a *Agent) start(ctx context.Context, heartbeatEvery time.Duration) error {
	if err := a.role.Initialize(ctx); err != nil {
		return fmt.Errorf("agent %s initialize: %w", a.ID, err)
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.startedAt = time.Now()
	a.lastBeat = a.startedAt
	go a.loop(ctx, heartbeatEvery)
	a.log.Info("agent started")
	return nil
}

func (a *Agent) loop(ctx context.Context, heartbeatEvery time.Duration) {
	defer close(a.done)
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.cleanup()
			return
		case <-ticker.C:
			a.beat()
		case msg := <-a.mailbox:
			a.handle(ctx, msg)
		}
	}
}

// handle dispatches one message to the role, containing panics and errors.
func (a *Agent) handle(ctx context.Context, msg Message) {
	out, err := a.invoke(ctx, msg)

	a.mu.Lock()
	a.processed++
	if err != nil {
		a.errs++
	}
	a.mu.Unlock()

	if err != nil {
		a.log.Error("message handling failed", "msg_type", msg.Type, "msg_id", msg.ID, "error", err)
		return
	}
	if len(out) > 0 {
		for i := range out {
			if out[i].Message.SenderID == "" {
				out[i].Message.SenderID = a.ID
			}
		}
		a.rt.route(a.ID, out)
	}
}

func (a *Agent) invoke(ctx context.Context, msg Message) (out []Outbound, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("agent: role panic: %v", r)
		}
	}()
	return a.role.HandleMessage(ctx, msg)
}

func (a *Agent) beat() {
	a.mu.Lock()
	a.lastBeat = time.Now()
	a.mu.Unlock()
	a.rt.heartbeat(a.snapshot())
}

func (a *Agent) cleanup() {
	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.role.Cleanup(cctx); err != nil {
		a.log.Error("cleanup failed", "error", err)
	}
	a.log.Info("agent stopped")
}

// deliver enqueues a message without blocking; a full mailbox is the
// sender's problem, never the agent's.
func (a *Agent) deliver(msg Message) error {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return fmt.Errorf("%w: %s", ErrAgentStopped, a.ID)
	}
	select {
	case a.mailbox <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMailboxFull, a.ID)
	}
}

// stop shuts the agent down and waits for the loop to exit.
func (a *Agent) stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.stopped = true
	a.mu.Unlock()
	a.cancel()
	<-a.done
}

func (a *Agent) snapshot() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Metrics{
		AgentID:       a.ID,
		Role:          a.role.Type(),
		Processed:     a.processed,
		Errors:        a.errs,
		StartedAt:     a.startedAt,
		LastHeartbeat: a.lastBeat,
		Uptime:        time.Since(a.startedAt).Round(time.Millisecond).String(),
	}
}
