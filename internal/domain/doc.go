// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (listing.go, session.go, status.go, errors.go) hold shared types
// and the contracts adapters implement. No implementation code beyond small value helpers.
// Interfaces live on the consumer side to avoid circular imports.
package domain
