// ABOUTME: Cheque lifecycle state machine and bank-to-bank handoff decisions
// ABOUTME: All status+holder mutations go through the store's compare-and-set

package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/OSama2626/chequegate/internal/metrics"
	"github.com/OSama2626/chequegate/internal/notify"
	"github.com/OSama2626/chequegate/internal/store"
)

// ErrNotOwner indicates the requester is not the cheque's current holder.
var ErrNotOwner = errors.New("requester is not the current holder")

// ErrSameBankTransfer indicates the cheque's target bank is the requester's
// own bank; such cheques must be processed locally, never transferred.
var ErrSameBankTransfer = errors.New("cheque targets the requester's own bank")

// ErrNoAgentAvailable indicates the destination bank has no active agents.
var ErrNoAgentAvailable = errors.New("no active agent available")

// ErrAlreadyTerminal indicates the cheque was already approved, rejected,
// or validated; terminal cheques never change again.
var ErrAlreadyTerminal = errors.New("cheque already in a terminal state")

// ErrInvalidOutcome indicates a Resolve call with a non-terminal outcome.
var ErrInvalidOutcome = errors.New("invalid resolution outcome")

// Notifier is the push side channel the engine fires after a successful
// ownership change. Implementations must never block the transition.
type Notifier interface {
	Notify(agentID string, event *notify.Event)
}

// Engine governs the cheque lifecycle:
//
//	pending -> uploaded -> {transmitted, approved, rejected, validated}
//	transmitted -> {approved, rejected, validated}
//
// It holds no per-cheque lock; races between transitions on the same
// cheque are settled by the store's compare-and-set, where exactly one
// caller wins.
type Engine struct {
	cheques  store.ChequeStore
	dir      store.AgentDirectory
	notifier Notifier
	logger   *slog.Logger

	rr rrPicker
}

// NewEngine creates a routing engine. Pass nil logger for default.
func NewEngine(cheques store.ChequeStore, dir store.AgentDirectory, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cheques:  cheques,
		dir:      dir,
		notifier: notifier,
		logger:   logger.With("component", "routing"),
	}
}

// Deposit creates a cheque for the beneficiary and assigns it to an active
// agent of the beneficiary's own bank. Returns ErrNoAgentAvailable when
// that bank has no active agents, store.ErrNotFound for an unknown
// depositor or target bank.
func (e *Engine) Deposit(ctx context.Context, depositorID, targetBankID, imageRef string) (*store.Cheque, error) {
	depositorBank, err := e.dir.BankOf(ctx, depositorID)
	if err != nil {
		return nil, fmt.Errorf("resolving depositor bank: %w", err)
	}

	if _, err := e.dir.GetBank(ctx, targetBankID); err != nil {
		return nil, fmt.Errorf("resolving target bank: %w", err)
	}

	holder, err := e.pickAgent(ctx, depositorBank)
	if err != nil {
		return nil, err
	}

	cheque := &store.Cheque{
		ID:            uuid.New().String(),
		ImageRef:      imageRef,
		DepositedAt:   time.Now().UTC(),
		DepositorID:   depositorID,
		TargetBankID:  targetBankID,
		Status:        store.StatusPending,
		HolderAgentID: &holder,
	}

	if err := e.cheques.CreateCheque(ctx, cheque); err != nil {
		return nil, fmt.Errorf("creating cheque: %w", err)
	}

	metrics.ChequesDeposited.Inc()
	e.logger.Info("cheque deposited",
		"cheque_id", cheque.ID,
		"depositor_id", depositorID,
		"target_bank_id", targetBankID,
		"holder", holder,
	)

	e.notifier.Notify(holder, &notify.Event{
		Type:     notify.EventChequeReceived,
		ChequeID: cheque.ID,
		Message:  "A new cheque was deposited and assigned to you",
		Status:   cheque.Status,
	})

	return cheque, nil
}

// Transfer hands a cheque from an agent of the depositor's bank to an
// active agent of the cheque's target bank. Only the current holder may
// transfer, only while the cheque is still pending or uploaded, and never
// when the target bank is the requester's own. The status+holder update is
// one compare-and-set; a lost race surfaces as ErrConcurrentModification.
func (e *Engine) Transfer(ctx context.Context, chequeID, requestingAgentID string) (*store.Cheque, error) {
	cheque, err := e.cheques.GetCheque(ctx, chequeID)
	if err != nil {
		return nil, err
	}

	if cheque.HolderAgentID == nil || *cheque.HolderAgentID != requestingAgentID {
		return nil, ErrNotOwner
	}

	requesterBank, err := e.dir.BankOf(ctx, requestingAgentID)
	if err != nil {
		return nil, fmt.Errorf("resolving requester bank: %w", err)
	}
	if requesterBank == cheque.TargetBankID {
		// Covers both a same-bank deposit and a re-transfer attempt on an
		// already-transmitted cheque, whose holder is a target-bank agent.
		return nil, ErrSameBankTransfer
	}

	if cheque.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	if !cheque.Status.Transferable() {
		return nil, ErrNotOwner
	}

	newHolder, err := e.pickAgent(ctx, cheque.TargetBankID)
	if err != nil {
		return nil, err
	}

	err = e.cheques.CompareAndSetOwnership(ctx, chequeID,
		cheque.Status, cheque.HolderAgentID,
		store.StatusTransmitted, &newHolder,
	)
	if err != nil {
		if errors.Is(err, store.ErrConcurrentModification) {
			metrics.TransitionConflicts.Inc()
		}
		return nil, err
	}

	metrics.ChequesTransferred.Inc()
	e.logger.Info("cheque transferred",
		"cheque_id", chequeID,
		"from_agent", requestingAgentID,
		"to_agent", newHolder,
		"target_bank_id", cheque.TargetBankID,
	)

	e.notifier.Notify(newHolder, &notify.Event{
		Type:       notify.EventChequeReceived,
		ChequeID:   chequeID,
		Message:    "A cheque was transferred to your bank for processing",
		Status:     store.StatusTransmitted,
		FromBankID: requesterBank,
	})

	cheque.Status = store.StatusTransmitted
	cheque.HolderAgentID = &newHolder
	return cheque, nil
}

// Resolve closes a cheque with a terminal outcome. Only the current holder
// may resolve; the holder is retained afterwards so the record shows who
// closed the cheque. A compare-and-set miss that turns out to be a
// concurrent resolution is reported as ErrAlreadyTerminal, which callers
// may treat as a no-op success when retrying.
func (e *Engine) Resolve(ctx context.Context, chequeID, requestingAgentID string, outcome store.ChequeStatus) (*store.Cheque, error) {
	if !outcome.Terminal() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	cheque, err := e.cheques.GetCheque(ctx, chequeID)
	if err != nil {
		return nil, err
	}

	if cheque.HolderAgentID == nil || *cheque.HolderAgentID != requestingAgentID {
		return nil, ErrNotOwner
	}
	if cheque.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	err = e.cheques.CompareAndSetOwnership(ctx, chequeID,
		cheque.Status, cheque.HolderAgentID,
		outcome, cheque.HolderAgentID,
	)
	if err != nil {
		if errors.Is(err, store.ErrConcurrentModification) {
			metrics.TransitionConflicts.Inc()
			// Refine: a race lost to another resolution is definitive.
			if current, ferr := e.cheques.GetCheque(ctx, chequeID); ferr == nil && current.Status.Terminal() {
				return nil, ErrAlreadyTerminal
			}
		}
		return nil, err
	}

	metrics.ChequesResolved.WithLabelValues(string(outcome)).Inc()
	e.logger.Info("cheque resolved",
		"cheque_id", chequeID,
		"agent_id", requestingAgentID,
		"outcome", outcome,
	)

	e.notifier.Notify(requestingAgentID, &notify.Event{
		Type:     notify.EventChequeStatusChanged,
		ChequeID: chequeID,
		Message:  fmt.Sprintf("Cheque resolved as %s", outcome),
		Status:   outcome,
	})

	cheque.Status = outcome
	return cheque, nil
}

// RecordAnalysis stores the external analyzer's extracted fields and moves
// a pending cheque to uploaded. The analyzer is trusted input; no
// ownership check applies.
func (e *Engine) RecordAnalysis(ctx context.Context, chequeID, chequeNumber string, amount float64) (*store.Cheque, error) {
	if err := e.cheques.RecordAnalysis(ctx, chequeID, chequeNumber, amount); err != nil {
		return nil, err
	}

	e.logger.Debug("analysis recorded", "cheque_id", chequeID)
	return e.cheques.GetCheque(ctx, chequeID)
}

// ListHeld returns the cheques currently assigned to the agent, optionally
// filtered by status.
func (e *Engine) ListHeld(ctx context.Context, agentID string, status store.ChequeStatus) ([]*store.Cheque, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status filter %q", status)
	}
	return e.cheques.ListByHolder(ctx, agentID, status)
}

// Stats tallies a beneficiary's cheques per status.
func (e *Engine) Stats(ctx context.Context, depositorID string) (store.StatusCounts, error) {
	return e.cheques.CountByStatus(ctx, depositorID)
}

// pickAgent selects an active agent of the bank, round-robin across calls.
func (e *Engine) pickAgent(ctx context.Context, bankID string) (string, error) {
	agents, err := e.dir.ActiveAgentsOf(ctx, bankID)
	if err != nil {
		return "", fmt.Errorf("listing active agents: %w", err)
	}
	if len(agents) == 0 {
		metrics.NoAgentAvailable.WithLabelValues(bankID).Inc()
		e.logger.Warn("no active agent available", "bank_id", bankID)
		return "", ErrNoAgentAvailable
	}
	return e.rr.pick(bankID, agents), nil
}
