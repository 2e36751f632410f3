// Package store persists cheques, users, and banks for chequegate.
//
// # Contracts
//
// Two narrow interfaces carry everything the routing engine is allowed to
// touch:
//
//   - ChequeStore: cheque reads plus the single atomic mutation,
//     CompareAndSetOwnership
//   - AgentDirectory: bank membership and active-agent rosters
//
// The full Store interface adds user/bank writes for the admin flow and
// test fixtures. SQLiteStore implements Store on modernc.org/sqlite;
// MockStore is the in-memory equivalent for tests.
//
// # Ownership concurrency
//
// A cheque's (status, holder) pair changes only through
// CompareAndSetOwnership, which compares the expected prior pair inside
// the UPDATE itself. Two racing transitions on the same cheque therefore
// resolve at the database: one matches the row, the other gets
// ErrConcurrentModification. The core never caches ownership state across
// requests and holds no per-cheque lock of its own.
package store
