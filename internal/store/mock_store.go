// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite while keeping CAS semantics

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing. Its
// CompareAndSetOwnership holds the mutex across the check-and-update so it
// gives the same exactly-one-winner guarantee as the SQL implementation.
type MockStore struct {
	mu      sync.RWMutex
	cheques map[string]*Cheque
	users   map[string]*User
	banks   map[string]*Bank
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		cheques: make(map[string]*Cheque),
		users:   make(map[string]*User),
		banks:   make(map[string]*Bank),
	}
}

// CreateCheque stores a new cheque.
func (m *MockStore) CreateCheque(ctx context.Context, cheque *Cheque) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cheques[cheque.ID]; ok {
		return ErrDuplicateID
	}

	c := *cheque
	m.cheques[c.ID] = &c
	return nil
}

// GetCheque retrieves a cheque by ID.
func (m *MockStore) GetCheque(ctx context.Context, id string) (*Cheque, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cheques[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *c
	return &result, nil
}

// ListByHolder retrieves cheques held by the agent, newest first.
func (m *MockStore) ListByHolder(ctx context.Context, agentID string, status ChequeStatus) ([]*Cheque, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cheques []*Cheque
	for _, c := range m.cheques {
		if c.HolderAgentID == nil || *c.HolderAgentID != agentID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		copied := *c
		cheques = append(cheques, &copied)
	}

	sort.Slice(cheques, func(i, j int) bool {
		return cheques[i].DepositedAt.After(cheques[j].DepositedAt)
	})
	return cheques, nil
}

// ListByDepositor retrieves a beneficiary's cheques, newest first.
func (m *MockStore) ListByDepositor(ctx context.Context, depositorID string) ([]*Cheque, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cheques []*Cheque
	for _, c := range m.cheques {
		if c.DepositorID != depositorID {
			continue
		}
		copied := *c
		cheques = append(cheques, &copied)
	}

	sort.Slice(cheques, func(i, j int) bool {
		return cheques[i].DepositedAt.After(cheques[j].DepositedAt)
	})
	return cheques, nil
}

// CountByStatus tallies a beneficiary's cheques per status.
func (m *MockStore) CountByStatus(ctx context.Context, depositorID string) (StatusCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(StatusCounts)
	for _, c := range m.cheques {
		if c.DepositorID == depositorID {
			counts[c.Status]++
		}
	}
	return counts, nil
}

func holderEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CompareAndSetOwnership atomically transitions a cheque's (status, holder) pair.
func (m *MockStore) CompareAndSetOwnership(ctx context.Context, chequeID string, expectedStatus ChequeStatus, expectedHolder *string, newStatus ChequeStatus, newHolder *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cheques[chequeID]
	if !ok {
		return ErrNotFound
	}

	if c.Status != expectedStatus || !holderEqual(c.HolderAgentID, expectedHolder) {
		return ErrConcurrentModification
	}

	c.Status = newStatus
	if newHolder == nil {
		c.HolderAgentID = nil
	} else {
		h := *newHolder
		c.HolderAgentID = &h
	}
	return nil
}

// RecordAnalysis stores extracted fields and promotes pending to uploaded.
func (m *MockStore) RecordAnalysis(ctx context.Context, chequeID, chequeNumber string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cheques[chequeID]
	if !ok {
		return ErrNotFound
	}

	number := chequeNumber
	amt := amount
	c.ChequeNumber = &number
	c.Amount = &amt
	if c.Status == StatusPending {
		c.Status = StatusUploaded
	}
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *u
	return &result, nil
}

// BankOf returns the bank a user belongs to.
func (m *MockStore) BankOf(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return "", ErrNotFound
	}
	return u.BankID, nil
}

// ActiveAgentsOf returns active agent IDs in the bank, ordered by ID.
func (m *MockStore) ActiveAgentsOf(ctx context.Context, bankID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, u := range m.users {
		if u.BankID == bankID && u.Role == RoleAgent && u.Active {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetBank retrieves a bank by ID.
func (m *MockStore) GetBank(ctx context.Context, id string) (*Bank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.banks[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *b
	return &result, nil
}

// ListBanks returns all banks ordered by name.
func (m *MockStore) ListBanks(ctx context.Context) ([]*Bank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var banks []*Bank
	for _, b := range m.banks {
		copied := *b
		banks = append(banks, &copied)
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i].Name < banks[j].Name })
	return banks, nil
}

// CreateBank stores a new bank.
func (m *MockStore) CreateBank(ctx context.Context, bank *Bank) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.banks[bank.ID]; ok {
		return ErrDuplicateID
	}
	b := *bank
	m.banks[b.ID] = &b
	return nil
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return ErrDuplicateID
	}
	u := *user
	m.users[u.ID] = &u
	return nil
}

// SetUserActive flips a user's active flag.
func (m *MockStore) SetUserActive(ctx context.Context, userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
