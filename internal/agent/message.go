package agent

import (
	"time"

	"github.com/google/uuid"
)

// MessageType tags the payload carried by a Message.
type MessageType string

const (
	MsgSignalRequest   MessageType = "signal_request"
	MsgSignal          MessageType = "signal"
	MsgBacktestRequest MessageType = "backtest_request"
	MsgBacktestResult  MessageType = "backtest_result"
	MsgOptimizeRequest MessageType = "optimize_request"
	MsgOptimizeResult  MessageType = "optimize_result"
	MsgRiskRequest     MessageType = "risk_request"
	MsgRiskReport      MessageType = "risk_report"
	MsgHeartbeat       MessageType = "heartbeat"
)

// Message is the unit of communication between agents. Agents never hold
// references to each other; everything moves through the runtime by ID.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	SenderID  string      `json:"sender_id"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewMessage(t MessageType, senderID string, payload any) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      t,
		SenderID:  senderID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
