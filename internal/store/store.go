// ABOUTME: Store contracts and data types for chequegate persistence
// ABOUTME: Defines Cheque, User, Bank structs and the ChequeStore/AgentDirectory interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConcurrentModification is returned when a compare-and-set update
// observes a different (status, holder) pair than the caller expected
var ErrConcurrentModification = errors.New("concurrent modification")

// ErrDuplicateID is returned when trying to create an entity whose ID already exists
var ErrDuplicateID = errors.New("duplicate id")

// ChequeStatus is the lifecycle state of a deposited cheque
type ChequeStatus string

const (
	StatusPending     ChequeStatus = "pending"
	StatusUploaded    ChequeStatus = "uploaded"
	StatusTransmitted ChequeStatus = "transmitted"
	StatusApproved    ChequeStatus = "approved"
	StatusRejected    ChequeStatus = "rejected"
	StatusValidated   ChequeStatus = "validated"
)

// Terminal reports whether no further transitions are permitted from s.
func (s ChequeStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusValidated
}

// Transferable reports whether a cheque in state s may still be handed to
// its target bank. Both pending and uploaded are pre-routing states; which
// one a cheque is in depends only on whether automated analysis has run.
func (s ChequeStatus) Transferable() bool {
	return s == StatusPending || s == StatusUploaded
}

// Valid reports whether s is a known status value.
func (s ChequeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusUploaded, StatusTransmitted, StatusApproved, StatusRejected, StatusValidated:
		return true
	}
	return false
}

// User role constants for the users table
const (
	RoleAgent       = "agent"
	RoleBeneficiary = "beneficiary"
	RoleAdmin       = "admin"
)

// Cheque represents one deposited cheque instance. ID, ImageRef,
// DepositedAt, DepositorID and TargetBankID are immutable after creation;
// Status and HolderAgentID mutate only through CompareAndSetOwnership.
type Cheque struct {
	ID           string
	ImageRef     string // opaque handle into the blob store
	DepositedAt  time.Time
	DepositorID  string
	TargetBankID string
	Status       ChequeStatus
	// HolderAgentID is the agent currently responsible for acting on the
	// cheque. Retained after resolution so the record shows who closed it.
	HolderAgentID *string

	// Extracted by the external cheque analyzer, nil until analysis lands.
	ChequeNumber *string
	Amount       *float64
}

// User is a bank-affiliated identity: an agent, a beneficiary, or an admin.
// BankID is immutable once assigned. Inactive agents must never receive
// new cheque assignments or notifications.
type User struct {
	ID          string
	BankID      string
	Role        string // "agent", "beneficiary", "admin"
	DisplayName string
	Active      bool
	CreatedAt   time.Time
}

// Bank is referenced by cheques and users, never mutated by the core.
type Bank struct {
	ID   string
	Name string
}

// StatusCounts is a per-status tally of a beneficiary's cheques.
type StatusCounts map[ChequeStatus]int

// ChequeStore is the persistence contract the routing engine needs.
// All routing reads and writes go through it so the compare-and-set
// atomicity guarantee lives in exactly one place.
type ChequeStore interface {
	// CreateCheque inserts a new cheque. Returns ErrDuplicateID if the ID exists.
	CreateCheque(ctx context.Context, cheque *Cheque) error

	// GetCheque returns the cheque or ErrNotFound.
	GetCheque(ctx context.Context, id string) (*Cheque, error)

	// ListByHolder returns cheques currently held by the agent, newest
	// first. An empty status filters nothing.
	ListByHolder(ctx context.Context, agentID string, status ChequeStatus) ([]*Cheque, error)

	// ListByDepositor returns a beneficiary's cheques, newest first.
	ListByDepositor(ctx context.Context, depositorID string) ([]*Cheque, error)

	// CountByStatus tallies a beneficiary's cheques per status.
	CountByStatus(ctx context.Context, depositorID string) (StatusCounts, error)

	// CompareAndSetOwnership atomically moves a cheque from
	// (expectedStatus, expectedHolder) to (newStatus, newHolder).
	// Returns ErrNotFound if the cheque does not exist and
	// ErrConcurrentModification if the expected pair no longer matches.
	CompareAndSetOwnership(ctx context.Context, chequeID string, expectedStatus ChequeStatus, expectedHolder *string, newStatus ChequeStatus, newHolder *string) error

	// RecordAnalysis stores the analyzer's extracted fields and promotes a
	// pending cheque to uploaded. Cheques past pending keep their status.
	RecordAnalysis(ctx context.Context, chequeID, chequeNumber string, amount float64) error
}

// AgentDirectory resolves bank membership and live agent rosters.
type AgentDirectory interface {
	// GetUser returns the user record or ErrNotFound.
	GetUser(ctx context.Context, id string) (*User, error)

	// BankOf returns the bank a user belongs to, or ErrNotFound.
	BankOf(ctx context.Context, userID string) (string, error)

	// ActiveAgentsOf returns the IDs of active agents in the bank, ordered
	// by ID. Empty-roster handling belongs to the routing engine.
	ActiveAgentsOf(ctx context.Context, bankID string) ([]string, error)

	// GetBank returns the bank record or ErrNotFound.
	GetBank(ctx context.Context, id string) (*Bank, error)

	// ListBanks returns all banks ordered by name.
	ListBanks(ctx context.Context) ([]*Bank, error)
}

// Store is the full persistence surface. User and bank writes exist for
// the admin flow and test fixtures; the routing core only reads them.
type Store interface {
	ChequeStore
	AgentDirectory

	CreateBank(ctx context.Context, bank *Bank) error
	CreateUser(ctx context.Context, user *User) error
	SetUserActive(ctx context.Context, userID string, active bool) error

	// Close releases any resources held by the store
	Close() error
}
