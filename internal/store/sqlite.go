// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides cheque/user/bank persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS banks (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			bank_id      TEXT NOT NULL REFERENCES banks(id),
			role         TEXT NOT NULL,
			display_name TEXT NOT NULL,
			active       INTEGER NOT NULL DEFAULT 1,
			created_at   TEXT NOT NULL,

			CHECK (role IN ('agent', 'beneficiary', 'admin'))
		);

		CREATE INDEX IF NOT EXISTS idx_users_bank_role ON users(bank_id, role, active);

		CREATE TABLE IF NOT EXISTS cheques (
			id              TEXT PRIMARY KEY,
			image_ref       TEXT NOT NULL,
			deposited_at    TEXT NOT NULL,
			depositor_id    TEXT NOT NULL REFERENCES users(id),
			target_bank_id  TEXT NOT NULL REFERENCES banks(id),
			status          TEXT NOT NULL,
			holder_agent_id TEXT REFERENCES users(id),
			cheque_number   TEXT,
			amount          REAL,

			CHECK (status IN ('pending', 'uploaded', 'transmitted', 'approved', 'rejected', 'validated'))
		);

		CREATE INDEX IF NOT EXISTS idx_cheques_holder ON cheques(holder_agent_id, status);
		CREATE INDEX IF NOT EXISTS idx_cheques_depositor ON cheques(depositor_id, deposited_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateCheque inserts a new cheque record.
// Returns ErrDuplicateID if a cheque with the same ID already exists.
func (s *SQLiteStore) CreateCheque(ctx context.Context, cheque *Cheque) error {
	query := `
		INSERT INTO cheques (id, image_ref, deposited_at, depositor_id, target_bank_id, status, holder_agent_id, cheque_number, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		cheque.ID,
		cheque.ImageRef,
		cheque.DepositedAt.UTC().Format(time.RFC3339),
		cheque.DepositorID,
		cheque.TargetBankID,
		string(cheque.Status),
		cheque.HolderAgentID,
		cheque.ChequeNumber,
		cheque.Amount,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting cheque: %w", err)
	}

	s.logger.Debug("created cheque", "id", cheque.ID, "target_bank", cheque.TargetBankID)
	return nil
}

const chequeColumns = `id, image_ref, deposited_at, depositor_id, target_bank_id, status, holder_agent_id, cheque_number, amount`

// scanCheque reads one cheque row from a row scanner.
func scanCheque(scan func(dest ...any) error) (*Cheque, error) {
	var cheque Cheque
	var depositedAtStr, statusStr string

	err := scan(
		&cheque.ID,
		&cheque.ImageRef,
		&depositedAtStr,
		&cheque.DepositorID,
		&cheque.TargetBankID,
		&statusStr,
		&cheque.HolderAgentID,
		&cheque.ChequeNumber,
		&cheque.Amount,
	)
	if err != nil {
		return nil, err
	}

	cheque.Status = ChequeStatus(statusStr)
	cheque.DepositedAt, err = time.Parse(time.RFC3339, depositedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing deposited_at: %w", err)
	}

	return &cheque, nil
}

// GetCheque retrieves a cheque by ID.
// Returns ErrNotFound if the cheque doesn't exist.
func (s *SQLiteStore) GetCheque(ctx context.Context, id string) (*Cheque, error) {
	query := `SELECT ` + chequeColumns + ` FROM cheques WHERE id = ?`

	cheque, err := scanCheque(s.db.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying cheque: %w", err)
	}

	return cheque, nil
}

// ListByHolder retrieves cheques currently assigned to the given agent,
// newest first. An empty status returns all of the agent's cheques.
func (s *SQLiteStore) ListByHolder(ctx context.Context, agentID string, status ChequeStatus) ([]*Cheque, error) {
	query := `SELECT ` + chequeColumns + ` FROM cheques WHERE holder_agent_id = ?`
	args := []any{agentID}

	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY deposited_at DESC`

	return s.queryCheques(ctx, query, args...)
}

// ListByDepositor retrieves a beneficiary's cheques, newest first.
func (s *SQLiteStore) ListByDepositor(ctx context.Context, depositorID string) ([]*Cheque, error) {
	query := `SELECT ` + chequeColumns + ` FROM cheques WHERE depositor_id = ? ORDER BY deposited_at DESC`
	return s.queryCheques(ctx, query, depositorID)
}

func (s *SQLiteStore) queryCheques(ctx context.Context, query string, args ...any) ([]*Cheque, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cheques: %w", err)
	}
	defer rows.Close()

	var cheques []*Cheque
	for rows.Next() {
		cheque, err := scanCheque(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning cheque: %w", err)
		}
		cheques = append(cheques, cheque)
	}

	return cheques, rows.Err()
}

// CountByStatus tallies a beneficiary's cheques per status.
func (s *SQLiteStore) CountByStatus(ctx context.Context, depositorID string) (StatusCounts, error) {
	query := `SELECT status, COUNT(*) FROM cheques WHERE depositor_id = ? GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, depositorID)
	if err != nil {
		return nil, fmt.Errorf("counting cheques: %w", err)
	}
	defer rows.Close()

	counts := make(StatusCounts)
	for rows.Next() {
		var statusStr string
		var n int
		if err := rows.Scan(&statusStr, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[ChequeStatus(statusStr)] = n
	}

	return counts, rows.Err()
}

// CompareAndSetOwnership atomically transitions a cheque's (status, holder)
// pair. The WHERE clause carries the expected prior pair, so under a race
// between two callers exactly one UPDATE matches a row; the loser observes
// zero rows affected and gets ErrConcurrentModification. "IS ?" gives
// NULL-safe comparison for the holder column.
func (s *SQLiteStore) CompareAndSetOwnership(ctx context.Context, chequeID string, expectedStatus ChequeStatus, expectedHolder *string, newStatus ChequeStatus, newHolder *string) error {
	query := `
		UPDATE cheques
		SET status = ?, holder_agent_id = ?
		WHERE id = ? AND status = ? AND holder_agent_id IS ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(newStatus),
		newHolder,
		chequeID,
		string(expectedStatus),
		expectedHolder,
	)
	if err != nil {
		return fmt.Errorf("updating cheque ownership: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish a missing cheque from a lost race
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM cheques WHERE id = ?`, chequeID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking cheque existence: %w", err)
		}
		return ErrConcurrentModification
	}

	s.logger.Debug("cheque ownership updated",
		"cheque_id", chequeID,
		"status", newStatus,
	)
	return nil
}

// RecordAnalysis stores the analyzer's extracted fields. A pending cheque
// moves to uploaded; any later status is left untouched so analysis
// arriving after a transfer or resolution cannot regress the lifecycle.
func (s *SQLiteStore) RecordAnalysis(ctx context.Context, chequeID, chequeNumber string, amount float64) error {
	query := `
		UPDATE cheques
		SET cheque_number = ?,
		    amount = ?,
		    status = CASE WHEN status = 'pending' THEN 'uploaded' ELSE status END
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, chequeNumber, amount, chequeID)
	if err != nil {
		return fmt.Errorf("recording analysis: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("recorded cheque analysis", "cheque_id", chequeID)
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, bank_id, role, display_name, active, created_at
		FROM users
		WHERE id = ?
	`

	var user User
	var active int
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.BankID,
		&user.Role,
		&user.DisplayName,
		&active,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.Active = active != 0
	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// BankOf returns the bank a user belongs to.
func (s *SQLiteStore) BankOf(ctx context.Context, userID string) (string, error) {
	var bankID string
	err := s.db.QueryRowContext(ctx, `SELECT bank_id FROM users WHERE id = ?`, userID).Scan(&bankID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying user bank: %w", err)
	}
	return bankID, nil
}

// ActiveAgentsOf returns the IDs of active agents in the given bank,
// ordered by ID so round-robin selection is stable across calls.
func (s *SQLiteStore) ActiveAgentsOf(ctx context.Context, bankID string) ([]string, error) {
	query := `
		SELECT id FROM users
		WHERE bank_id = ? AND role = 'agent' AND active = 1
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, bankID)
	if err != nil {
		return nil, fmt.Errorf("querying active agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning agent id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetBank retrieves a bank by ID.
func (s *SQLiteStore) GetBank(ctx context.Context, id string) (*Bank, error) {
	var bank Bank
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM banks WHERE id = ?`, id).Scan(&bank.ID, &bank.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying bank: %w", err)
	}
	return &bank, nil
}

// ListBanks returns all banks ordered by name.
func (s *SQLiteStore) ListBanks(ctx context.Context) ([]*Bank, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM banks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying banks: %w", err)
	}
	defer rows.Close()

	var banks []*Bank
	for rows.Next() {
		var bank Bank
		if err := rows.Scan(&bank.ID, &bank.Name); err != nil {
			return nil, fmt.Errorf("scanning bank: %w", err)
		}
		banks = append(banks, &bank)
	}

	return banks, rows.Err()
}

// CreateBank inserts a new bank record.
func (s *SQLiteStore) CreateBank(ctx context.Context, bank *Bank) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO banks (id, name) VALUES (?, ?)`, bank.ID, bank.Name)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting bank: %w", err)
	}
	return nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, bank_id, role, display_name, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	active := 0
	if user.Active {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.BankID,
		user.Role,
		user.DisplayName,
		active,
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// SetUserActive flips a user's active flag.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetUserActive(ctx context.Context, userID string, active bool) error {
	activeInt := 0
	if active {
		activeInt = 1
	}

	result, err := s.db.ExecContext(ctx, `UPDATE users SET active = ? WHERE id = ?`, activeInt, userID)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
