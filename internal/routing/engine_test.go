// ABOUTME: Tests for the routing engine state machine
// ABOUTME: Covers ownership gates, terminal freezing, agent selection, and races

package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSama2626/chequegate/internal/notify"
	"github.com/OSama2626/chequegate/internal/store"
)

// recordingNotifier captures every event the engine fires.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

type notifiedEvent struct {
	agentID string
	event   *notify.Event
}

func (n *recordingNotifier) Notify(agentID string, event *notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedEvent{agentID: agentID, event: event})
}

func (n *recordingNotifier) all() []notifiedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifiedEvent(nil), n.events...)
}

func (n *recordingNotifier) last(t *testing.T) notifiedEvent {
	t.Helper()
	events := n.all()
	require.NotEmpty(t, events, "expected at least one notification")
	return events[len(events)-1]
}

func setupEngine(t *testing.T) (*Engine, *store.MockStore, *recordingNotifier) {
	t.Helper()

	m := store.NewMockStore()
	ctx := context.Background()
	require.NoError(t, m.CreateBank(ctx, &store.Bank{ID: "bank-a", Name: "Bank A"}))
	require.NoError(t, m.CreateBank(ctx, &store.Bank{ID: "bank-b", Name: "Bank B"}))
	require.NoError(t, m.CreateBank(ctx, &store.Bank{ID: "bank-empty", Name: "Empty Bank"}))

	users := []*store.User{
		{ID: "agent-a1", BankID: "bank-a", Role: store.RoleAgent, Active: true},
		{ID: "agent-a2", BankID: "bank-a", Role: store.RoleAgent, Active: true},
		{ID: "agent-b1", BankID: "bank-b", Role: store.RoleAgent, Active: true},
		{ID: "agent-b2", BankID: "bank-b", Role: store.RoleAgent, Active: true},
		{ID: "benef-1", BankID: "bank-a", Role: store.RoleBeneficiary, Active: true},
	}
	for _, u := range users {
		u.CreatedAt = time.Now().UTC()
		require.NoError(t, m.CreateUser(ctx, u))
	}

	n := &recordingNotifier{}
	return NewEngine(m, m, n, nil), m, n
}

func TestDeposit(t *testing.T) {
	e, _, n := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c1.png")
	require.NoError(t, err)

	assert.Equal(t, store.StatusPending, cheque.Status)
	assert.Equal(t, "benef-1", cheque.DepositorID)
	assert.Equal(t, "bank-b", cheque.TargetBankID)
	require.NotNil(t, cheque.HolderAgentID)
	// Assigned to an agent of the depositor's own bank
	assert.Contains(t, []string{"agent-a1", "agent-a2"}, *cheque.HolderAgentID)

	got := n.last(t)
	assert.Equal(t, *cheque.HolderAgentID, got.agentID)
	assert.Equal(t, notify.EventChequeReceived, got.event.Type)
	assert.Equal(t, cheque.ID, got.event.ChequeID)
}

func TestDeposit_RoundRobin(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	holders := make(map[string]int)
	for i := 0; i < 4; i++ {
		cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
		require.NoError(t, err)
		holders[*cheque.HolderAgentID]++
	}

	// Two active agents, four deposits: each gets two
	assert.Equal(t, 2, holders["agent-a1"])
	assert.Equal(t, 2, holders["agent-a2"])
}

func TestDeposit_NoAgentAvailable(t *testing.T) {
	e, m, _ := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, m.CreateUser(ctx, &store.User{
		ID: "benef-lonely", BankID: "bank-empty", Role: store.RoleBeneficiary, Active: true,
	}))

	_, err := e.Deposit(ctx, "benef-lonely", "bank-b", "blob://c.png")
	assert.ErrorIs(t, err, ErrNoAgentAvailable)
}

func TestDeposit_UnknownParties(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.Deposit(ctx, "ghost", "bank-b", "blob://c.png")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.Deposit(ctx, "benef-1", "bank-ghost", "blob://c.png")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransfer(t *testing.T) {
	e, _, n := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
	require.NoError(t, err)
	holder := *cheque.HolderAgentID

	transferred, err := e.Transfer(ctx, cheque.ID, holder)
	require.NoError(t, err)

	assert.Equal(t, store.StatusTransmitted, transferred.Status)
	require.NotNil(t, transferred.HolderAgentID)
	// New holder is an active agent of the target bank
	assert.Contains(t, []string{"agent-b1", "agent-b2"}, *transferred.HolderAgentID)

	got := n.last(t)
	assert.Equal(t, *transferred.HolderAgentID, got.agentID)
	assert.Equal(t, notify.EventChequeReceived, got.event.Type)
	assert.Equal(t, "bank-a", got.event.FromBankID)
}

func TestTransfer_NotOwner(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
	require.NoError(t, err)

	other := "agent-a1"
	if *cheque.HolderAgentID == other {
		other = "agent-a2"
	}

	_, err = e.Transfer(ctx, cheque.ID, other)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestTransfer_SameBank(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	// Cheque drawn on the depositor's own bank: must be processed locally
	cheque, err := e.Deposit(ctx, "benef-1", "bank-a", "blob://c.png")
	require.NoError(t, err)

	_, err = e.Transfer(ctx, cheque.ID, *cheque.HolderAgentID)
	assert.ErrorIs(t, err, ErrSameBankTransfer)
}

func TestTransfer_ReTransferRejected(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
	require.NoError(t, err)

	transferred, err := e.Transfer(ctx, cheque.ID, *cheque.HolderAgentID)
	require.NoError(t, err)

	// The new holder belongs to the target bank, so a second hop reads as a
	// same-bank transfer.
	_, err = e.Transfer(ctx, cheque.ID, *transferred.HolderAgentID)
	assert.ErrorIs(t, err, ErrSameBankTransfer)
}

func TestTransfer_TerminalFrozen(t *testing.T) {
	e, m, _ := setupEngine(t)
	ctx := context.Background()

	holder := "agent-a1"
	require.NoError(t, m.CreateCheque(ctx, &store.Cheque{
		ID: "chq-done", DepositorID: "benef-1", TargetBankID: "bank-b",
		Status: store.StatusApproved, HolderAgentID: &holder,
		DepositedAt: time.Now().UTC(),
	}))

	_, err := e.Transfer(ctx, "chq-done", holder)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestTransfer_NoAgentInTargetBank(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-empty", "blob://c.png")
	require.NoError(t, err)

	_, err = e.Transfer(ctx, cheque.ID, *cheque.HolderAgentID)
	assert.ErrorIs(t, err, ErrNoAgentAvailable)
}

func TestTransfer_ConcurrentExactlyOneWinner(t *testing.T) {
	e, m, _ := setupEngine(t)
	ctx := context.Background()

	holder := "agent-a1"
	require.NoError(t, m.CreateCheque(ctx, &store.Cheque{
		ID: "chq-race", DepositorID: "benef-1", TargetBankID: "bank-b",
		Status: store.StatusUploaded, HolderAgentID: &holder,
		DepositedAt: time.Now().UTC(),
	}))

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Transfer(ctx, "chq-race", holder)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent transfer must succeed")

	got, err := m.GetCheque(ctx, "chq-race")
	require.NoError(t, err)
	assert.Equal(t, store.StatusTransmitted, got.Status)
}

func TestResolve(t *testing.T) {
	e, m, n := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
	require.NoError(t, err)
	transferred, err := e.Transfer(ctx, cheque.ID, *cheque.HolderAgentID)
	require.NoError(t, err)
	holder := *transferred.HolderAgentID

	resolved, err := e.Resolve(ctx, cheque.ID, holder, store.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, store.StatusApproved, resolved.Status)

	// Holder retained: the record shows who closed the cheque
	got, err := m.GetCheque(ctx, cheque.ID)
	require.NoError(t, err)
	require.NotNil(t, got.HolderAgentID)
	assert.Equal(t, holder, *got.HolderAgentID)

	last := n.last(t)
	assert.Equal(t, holder, last.agentID)
	assert.Equal(t, notify.EventChequeStatusChanged, last.event.Type)
	assert.Equal(t, store.StatusApproved, last.event.Status)
}

func TestResolve_WithoutTransfer(t *testing.T) {
	// A same-bank cheque is resolved by the original holder without a hop.
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-a", "blob://c.png")
	require.NoError(t, err)

	resolved, err := e.Resolve(ctx, cheque.ID, *cheque.HolderAgentID, store.StatusValidated)
	require.NoError(t, err)
	assert.Equal(t, store.StatusValidated, resolved.Status)
}

func TestResolve_InvalidOutcome(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
	require.NoError(t, err)

	for _, outcome := range []store.ChequeStatus{store.StatusPending, store.StatusTransmitted, "shredded"} {
		_, err = e.Resolve(ctx, cheque.ID, *cheque.HolderAgentID, outcome)
		assert.ErrorIs(t, err, ErrInvalidOutcome, "outcome %q", outcome)
	}
}

func TestResolve_NotOwner(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
	require.NoError(t, err)

	_, err = e.Resolve(ctx, cheque.ID, "agent-b1", store.StatusApproved)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestResolve_TwiceIsTerminal(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-a", "blob://c.png")
	require.NoError(t, err)
	holder := *cheque.HolderAgentID

	_, err = e.Resolve(ctx, cheque.ID, holder, store.StatusApproved)
	require.NoError(t, err)

	_, err = e.Resolve(ctx, cheque.ID, holder, store.StatusRejected)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestResolve_ConcurrentExactlyOneWinner(t *testing.T) {
	e, m, _ := setupEngine(t)
	ctx := context.Background()

	holder := "agent-b1"
	require.NoError(t, m.CreateCheque(ctx, &store.Cheque{
		ID: "chq-rr", DepositorID: "benef-1", TargetBankID: "bank-b",
		Status: store.StatusTransmitted, HolderAgentID: &holder,
		DepositedAt: time.Now().UTC(),
	}))

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			outcome := store.StatusApproved
			if n%2 == 1 {
				outcome = store.StatusRejected
			}
			_, err := e.Resolve(ctx, "chq-rr", holder, outcome)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else {
			// Losers learn the cheque is closed, not a transient conflict
			assert.ErrorIs(t, err, ErrAlreadyTerminal)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent resolution must succeed")

	got, err := m.GetCheque(ctx, "chq-rr")
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func TestRecordAnalysis(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
	require.NoError(t, err)

	updated, err := e.RecordAnalysis(ctx, cheque.ID, "0099", 420.0)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUploaded, updated.Status)
	require.NotNil(t, updated.ChequeNumber)
	assert.Equal(t, "0099", *updated.ChequeNumber)

	_, err = e.RecordAnalysis(ctx, "missing", "1", 1.0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListHeld(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	cheque, err := e.Deposit(ctx, "benef-1", "bank-b", "blob://c.png")
	require.NoError(t, err)
	holder := *cheque.HolderAgentID

	held, err := e.ListHeld(ctx, holder, "")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, cheque.ID, held[0].ID)

	none, err := e.ListHeld(ctx, holder, store.StatusApproved)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = e.ListHeld(ctx, holder, "bogus")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	e, _, _ := setupEngine(t)
	ctx := context.Background()

	c1, err := e.Deposit(ctx, "benef-1", "bank-a", "blob://c1.png")
	require.NoError(t, err)
	_, err = e.Deposit(ctx, "benef-1", "bank-b", "blob://c2.png")
	require.NoError(t, err)
	_, err = e.Resolve(ctx, c1.ID, *c1.HolderAgentID, store.StatusApproved)
	require.NoError(t, err)

	counts, err := e.Stats(ctx, "benef-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.StatusPending])
	assert.Equal(t, 1, counts[store.StatusApproved])
}
