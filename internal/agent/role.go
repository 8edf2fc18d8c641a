package agent

import "context"

// RoleType identifies what kind of work an agent performs.
type RoleType string

const (
	RoleStrategy    RoleType = "strategy"
	RoleBacktest    RoleType = "backtest"
	RoleOptimizer   RoleType = "optimizer"
	RoleRisk        RoleType = "risk"
	RoleCoordinator RoleType = "coordinator"
)

// Role is the behavior an agent hosts. Initialize runs once before the
// mailbox loop starts; Cleanup runs once after it stops, whether the stop
// was orderly or a context cancellation. HandleMessage may return outbound
// messages, which the runtime routes on the agent's behalf; it must not
// block indefinitely, since the mailbox is drained sequentially.
type Role interface {
	Type() RoleType
	Initialize(ctx context.Context) error
	HandleMessage(ctx context.Context, msg Message) ([]Outbound, error)
	Cleanup(ctx context.Context) error
}

// Outbound is a message addressed to another agent by ID. An empty TargetID
// broadcasts to every other agent.
type Outbound struct {
	TargetID string
	Message  Message
}

// Reply addresses a message back to its sender.
func Reply(to Message, t MessageType, senderID string, payload any) Outbound {
	return Outbound{TargetID: to.SenderID, Message: NewMessage(t, senderID, payload)}
}
