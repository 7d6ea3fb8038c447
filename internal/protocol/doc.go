// Package protocol implements the acoustic challenge grammar and validation.
// It parses the colon-delimited FANVOTE payload, enforces the replay window,
// and defines the rejection reason taxonomy shared across the service.
package protocol
