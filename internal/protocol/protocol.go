package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Protocol constants from specification
const (
	// ChallengePrefix is the fixed first field of every acoustic payload.
	ChallengePrefix = "FANVOTE"

	// CodeTypeAuth is the code type literal for attendance challenges.
	CodeTypeAuth = "AUTH"

	// FieldCount is the minimum number of colon-delimited fields in a
	// well-formed challenge payload.
	FieldCount = 4

	// ReplayWindow is the maximum tolerated age of a challenge timestamp.
	// A design constant, not a configuration knob.
	ReplayWindow = 300 * time.Second
)

// Reason classifies why an authentication attempt or a decoded candidate
// was rejected. The empty string means no rejection.
type Reason string

const (
	ReasonNone Reason = ""

	// Candidate validation rejections (transient, keep listening)
	ReasonInvalidFormat   Reason = "invalid_format"
	ReasonInvalidPrefix   Reason = "invalid_prefix"
	ReasonContestMismatch Reason = "contest_mismatch"
	ReasonInvalidCodeType Reason = "invalid_code_type"
	ReasonExpiredCode     Reason = "expired_code"

	// Attempt-level failures (terminal)
	ReasonMicrophoneDenied     Reason = "microphone_denied"
	ReasonMicrophoneNotFound   Reason = "microphone_not_found"
	ReasonTimeout              Reason = "timeout"
	ReasonInitializationFailed Reason = "initialization_failed"
)

// IsTransient reports whether the reason is a candidate validation rejection
// that must never terminate a listening attempt.
func (r Reason) IsTransient() bool {
	switch r {
	case ReasonInvalidFormat, ReasonInvalidPrefix, ReasonContestMismatch,
		ReasonInvalidCodeType, ReasonExpiredCode:
		return true
	}
	return false
}

// Message returns a human-readable description of the reason, suitable for
// user-facing remediation.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonInvalidFormat:
		return "challenge payload is malformed"
	case ReasonInvalidPrefix:
		return "challenge payload has an unknown prefix"
	case ReasonContestMismatch:
		return "challenge was issued for a different contest"
	case ReasonInvalidCodeType:
		return "challenge code type is not an attendance code"
	case ReasonExpiredCode:
		return "challenge code has expired"
	case ReasonMicrophoneDenied:
		return "microphone access was denied"
	case ReasonMicrophoneNotFound:
		return "no microphone was found"
	case ReasonTimeout:
		return "no valid challenge was heard before the timeout"
	case ReasonInitializationFailed:
		return "audio decoder failed to initialize"
	default:
		return string(r)
	}
}

// ChallengeMessage represents a decoded acoustic challenge payload.
// Wire format: FANVOTE:<contestId>:AUTH:<epochSeconds>
type ChallengeMessage struct {
	Prefix    string
	ContestID string
	CodeType  string
	IssuedAt  int64 // Unix epoch seconds
}

// ParseChallenge splits a decoded candidate into a ChallengeMessage.
// A candidate that does not split into at least FieldCount colon-delimited
// fields, or whose timestamp field is not an integer, is a rejected
// candidate (non-empty Reason), never an error. Fields beyond the fourth
// are tolerated and ignored.
func ParseChallenge(raw string) (*ChallengeMessage, Reason) {
	parts := strings.Split(raw, ":")
	if len(parts) < FieldCount {
		return nil, ReasonInvalidFormat
	}

	msg := &ChallengeMessage{
		Prefix:    parts[0],
		ContestID: parts[1],
		CodeType:  parts[2],
	}

	issuedAt, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		// Structurally four fields, but the timestamp cannot be read.
		// The reason tracks the field that failed.
		return msg, ReasonExpiredCode
	}
	msg.IssuedAt = issuedAt

	return msg, ReasonNone
}

// Validate checks a decoded candidate against the challenge grammar for the
// expected contest. Checks run in order: format, prefix, contest, code type,
// expiry. Only a candidate passing all five yields ReasonNone.
// Validate is side-effect-free and safe to call repeatedly.
func Validate(raw string, expectedContestID string, now time.Time) Reason {
	parts := strings.Split(raw, ":")
	if len(parts) < FieldCount {
		return ReasonInvalidFormat
	}

	if parts[0] != ChallengePrefix {
		return ReasonInvalidPrefix
	}

	if parts[1] != expectedContestID {
		return ReasonContestMismatch
	}

	if parts[2] != CodeTypeAuth {
		return ReasonInvalidCodeType
	}

	issuedAt, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return ReasonExpiredCode
	}

	// Compared in epoch seconds: converting the age to a Duration would
	// overflow for extreme forged timestamps and wrap into the window.
	window := int64(ReplayWindow / time.Second)
	if issuedAt < now.Unix()-window || issuedAt > now.Unix()+window {
		return ReasonExpiredCode
	}

	return ReasonNone
}

// BuildChallenge constructs the acoustic payload the venue broadcasts for a
// contest at the given instant.
func BuildChallenge(contestID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", ChallengePrefix, contestID, CodeTypeAuth, now.Unix())
}

// String returns a human-readable representation of the challenge message.
func (m *ChallengeMessage) String() string {
	return fmt.Sprintf("ChallengeMessage{Prefix:%q, ContestID:%q, CodeType:%q, IssuedAt:%d}",
		m.Prefix, m.ContestID, m.CodeType, m.IssuedAt)
}
