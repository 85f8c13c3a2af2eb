// Package mongo implements the listing store and admin directory on MongoDB.
//
// Votes are toggled with conditional single-document updates, so votes == len(voters) holds
// without transactions.
package mongo
