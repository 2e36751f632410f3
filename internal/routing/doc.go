// Package routing decides which bank and agent own each cheque.
//
// # State machine
//
// A cheque moves through a small lifecycle:
//
//	pending -> uploaded -> {transmitted, approved, rejected, validated}
//	transmitted -> {approved, rejected, validated}
//
// pending and uploaded are both "not yet acted upon"; the external cheque
// analyzer moves one to the other. approved, rejected, and validated are
// terminal: neither status nor holder ever changes again.
//
// # Transitions
//
//   - Deposit: creates the cheque, holder = an active agent of the
//     depositor's bank.
//   - Transfer: current holder hands the cheque to an active agent of the
//     target bank; rejected outright when the target bank is the
//     requester's own.
//   - Resolve: current holder closes the cheque with a terminal outcome;
//     the holder is retained for audit.
//
// # Concurrency
//
// Every status+holder mutation is a single compare-and-set scoped by
// cheque ID and the expected prior (status, holder) pair. Under a race,
// exactly one caller succeeds; the other observes
// store.ErrConcurrentModification and should re-fetch and retry or report
// the conflict. The engine never caches ownership between requests.
//
// Notification of the new holder is fired after the store write commits
// and is strictly best effort; the persisted cheque is the source of
// truth.
package routing
