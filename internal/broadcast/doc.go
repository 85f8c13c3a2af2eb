// Package broadcast fans session auth-state changes out to subscribers using the actor pattern.
//
// The Broker owns its subscriber table on a single goroutine with a command channel (no mutexes).
// Each subscription delivers from a one-slot mailbox on its own goroutine, so only the latest state is
// guaranteed to arrive. Writer serializes all writes to one WebSocket connection and handles slow clients.
package broadcast
