package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hkquant/internal/config"
)

var ErrUnknownAgent = fmt.Errorf("agent: unknown agent")

// HeartbeatFunc receives agent metric snapshots on every heartbeat tick,
// e.g. to push them out over a websocket hub.
type HeartbeatFunc func(Metrics)

// Runtime owns every agent: it spawns them, routes messages between them by
// ID, and tears them down. Agents hold no references to one another, so a
// crashed or wedged role cannot take a sibling with it.
type Runtime struct {
	cfg    config.AgentsConfig
	log    *slog.Logger
	onBeat HeartbeatFunc

	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewRuntime(cfg config.AgentsConfig, log *slog.Logger, onBeat HeartbeatFunc) *Runtime {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 256
	}
	if cfg.HeartbeatSeconds <= 0 {
		cfg.HeartbeatSeconds = 10
	}
	return &Runtime{
		cfg:    cfg,
		log:    log,
		onBeat: onBeat,
		agents: make(map[string]*Agent),
	}
}

// Spawn creates an agent for the role and starts its mailbox loop. The
// returned ID is the only handle other agents (and callers) ever get.
func (r *Runtime) Spawn(ctx context.Context, role Role) (string, error) {
	id := uuid.NewString()
	a := newAgent(id, role, r.cfg.MailboxSize, r, r.log)
	if err := a.start(ctx, time.Duration(r.cfg.HeartbeatSeconds)*time.Second); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.agents[id] = a
	r.mu.Unlock()
	return id, nil
}

// Send delivers a message to one agent. Delivery is non-blocking: a full
// mailbox returns ErrMailboxFull rather than stalling the caller.
func (r *Runtime) Send(targetID string, msg Message) error {
	r.mu.RLock()
	a, ok := r.agents[targetID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, targetID)
	}
	return a.deliver(msg)
}

// Broadcast delivers a message to every agent except the sender. Delivery
// failures are logged per target and do not stop the fan-out.
func (r *Runtime) Broadcast(msg Message) {
	r.mu.RLock()
	targets := make([]*Agent, 0, len(r.agents))
	for id, a := range r.agents {
		if id != msg.SenderID {
			targets = append(targets, a)
		}
	}
	r.mu.RUnlock()
	for _, a := range targets {
		if err := a.deliver(msg); err != nil {
			r.log.Warn("broadcast delivery failed", "target", a.ID, "error", err)
		}
	}
}

// route implements the router handed to agents: outbound messages go
// through the same Send/Broadcast paths as external callers.
func (r *Runtime) route(from string, out []Outbound) {
	for _, o := range out {
		if o.TargetID == "" {
			r.Broadcast(o.Message)
			continue
		}
		if err := r.Send(o.TargetID, o.Message); err != nil {
			r.log.Warn("routing failed", "from", from, "target", o.TargetID, "error", err)
		}
	}
}

func (r *Runtime) heartbeat(m Metrics) {
	if r.onBeat != nil {
		r.onBeat(m)
	}
}

// Metrics snapshots one agent's counters.
func (r *Runtime) Metrics(id string) (Metrics, error) {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return Metrics{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return a.snapshot(), nil
}

// List snapshots every live agent, ordered by ID for stable output.
func (r *Runtime) List() []Metrics {
	r.mu.RLock()
	out := make([]Metrics, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Stop shuts one agent down, waiting for its loop to exit and its role to
// clean up.
func (r *Runtime) Stop(id string) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	a.stop()
	return nil
}

// StopAll tears down every agent. Used at server shutdown.
func (r *Runtime) StopAll() {
	r.mu.Lock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.agents = make(map[string]*Agent)
	r.mu.Unlock()
	for _, a := range agents {
		a.stop()
	}
	r.log.Info("agent runtime stopped", "agents", len(agents))
}
