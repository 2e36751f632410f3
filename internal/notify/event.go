// ABOUTME: Notification event types pushed to agents over the real-time channel
// ABOUTME: JSON-shaped payloads; the persisted cheque remains the source of truth

package notify

import "github.com/OSama2626/chequegate/internal/store"

// EventType enumerates the notification kinds an agent can receive.
type EventType string

const (
	// EventChequeReceived fires when a cheque is newly assigned to an agent,
	// either at deposit or after a transfer from another bank.
	EventChequeReceived EventType = "cheque-received"

	// EventChequeStatusChanged fires when a cheque an agent holds changes
	// status without changing hands, e.g. a resolution from another session.
	EventChequeStatusChanged EventType = "cheque-status-changed"
)

// Event is the payload pushed to every live connection of the target
// agent. Losing one is acceptable: agents can always discover pending work
// by listing their held cheques.
type Event struct {
	Type     EventType          `json:"type"`
	ChequeID string             `json:"cheque_id"`
	Message  string             `json:"message"`
	Status   store.ChequeStatus `json:"status,omitempty"`

	// FromBankID is set on cheque-received events caused by a transfer.
	FromBankID string `json:"from_bank_id,omitempty"`
}
