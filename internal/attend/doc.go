// Package attend implements the attendance verification state machine.
// It orchestrates the capture pipeline and acoustic codec, validates decoded
// candidates against the challenge grammar, enforces the listening timeout,
// and resolves each attempt with a single immutable result.
package attend
