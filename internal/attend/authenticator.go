package attend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fanvote/fanvote-service/internal/audio"
	"github.com/fanvote/fanvote-service/internal/modem"
	"github.com/fanvote/fanvote-service/internal/protocol"
)

// ErrAttemptInFlight is returned when Authenticate is called while another
// attempt on the same instance is still running. The active attempt is left
// untouched.
var ErrAttemptInFlight = errors.New("attend: authentication attempt already in flight")

// State identifies where an authentication attempt currently is.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRequestingPermission
	StateListening
	StateVerified
	StateFailed
	StateTimedOut
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateListening:
		return "listening"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timeout"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// VerificationResult is the immutable outcome of one authentication attempt.
// Exactly one of the success and failure sides is populated.
type VerificationResult struct {
	Authenticated bool            `json:"authenticated"`
	RawMessage    string          `json:"raw_message,omitempty"`    // present iff authenticated
	FailureReason protocol.Reason `json:"failure_reason,omitempty"` // set iff not authenticated
	CompletedAt   time.Time       `json:"completed_at"`
}

// Message returns a human-readable summary of the result.
func (r *VerificationResult) Message() string {
	if r.Authenticated {
		return "attendance verified"
	}
	return r.FailureReason.Message()
}

// Config holds authenticator tuning parameters.
type Config struct {
	FrameSize int // samples per capture buffer
	QueueSize int // bounded frame channel capacity
}

// Authenticator proves physical presence at the venue: it listens on its
// capture source for an acoustic challenge matching the expected contest and
// resolves with the first terminal outcome among a valid challenge, a
// validated failure, and the listening timeout.
//
// Each Authenticator owns its source and codec instance, so independent
// contests and tests run isolated attempts with no shared state. At most one
// attempt may be in flight per instance.
type Authenticator struct {
	logger *slog.Logger
	source audio.Source
	codec  *modem.Processor
	cfg    Config

	clock func() time.Time

	state    atomic.Int32
	inFlight atomic.Bool

	// Attempt statistics
	candidatesSeen     atomic.Uint64
	candidatesRejected atomic.Uint64
}

// New creates an authenticator around an exclusive capture source and codec
// adapter.
func New(logger *slog.Logger, source audio.Source, codec *modem.Processor, cfg Config) *Authenticator {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 1024
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Authenticator{
		logger: logger,
		source: source,
		codec:  codec,
		cfg:    cfg,
		clock:  time.Now,
	}
}

// GetState returns the current attempt state.
func (a *Authenticator) GetState() State {
	return State(a.state.Load())
}

// Authenticate runs a single authentication attempt for the given contest.
// It returns when a decoded candidate passes validation, a resource
// acquisition failure occurs, or the timeout elapses, whichever comes
// first. Invalid candidates never terminate the attempt; the authenticator
// keeps listening.
//
// The context cancels the attempt: resources are released and (nil,
// ctx.Err()) is returned without fabricating a result. Calling Authenticate
// while an attempt is active returns ErrAttemptInFlight.
func (a *Authenticator) Authenticate(ctx context.Context, contestID string, timeout time.Duration) (*VerificationResult, error) {
	if !a.inFlight.CompareAndSwap(false, true) {
		a.logger.Warn("Authentication attempt already in flight, ignoring",
			slog.String("contest_id", contestID),
		)
		return nil, ErrAttemptInFlight
	}
	defer a.inFlight.Store(false)

	a.logger.Info("Starting authentication attempt",
		slog.String("contest_id", contestID),
		slog.Duration("timeout", timeout),
	)

	a.setState(StateInitializing)
	if err := a.codec.Initialize(); err != nil {
		a.logger.Error("Codec initialization failed", slog.String("error", err.Error()))
		return a.fail(protocol.ReasonInitializationFailed), nil
	}

	a.setState(StateRequestingPermission)
	if err := a.source.Open(ctx); err != nil {
		a.logger.Error("Capture acquisition failed", slog.String("error", err.Error()))
		return a.fail(acquisitionReason(err)), nil
	}

	// Every exit path below converges here: stop the producer, then
	// release the microphone.
	pipeCtx, cancelPipeline := context.WithCancel(ctx)
	defer func() {
		cancelPipeline()
		if err := a.source.Close(); err != nil {
			a.logger.Warn("Error releasing capture source", slog.String("error", err.Error()))
		}
	}()

	pipeline := audio.NewPipeline(a.logger, a.cfg.FrameSize, a.cfg.QueueSize)
	frames := pipeline.Start(pipeCtx, a.source)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	a.setState(StateListening)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Authentication attempt cancelled",
				slog.String("contest_id", contestID),
			)
			a.setState(StateIdle)
			return nil, ctx.Err()

		case <-timer.C:
			a.setState(StateTimedOut)
			a.logger.Info("Authentication attempt timed out",
				slog.String("contest_id", contestID),
				slog.Uint64("candidates_rejected", a.candidatesRejected.Load()),
			)
			return &VerificationResult{
				Authenticated: false,
				FailureReason: protocol.ReasonTimeout,
				CompletedAt:   a.clock(),
			}, nil

		case frame, ok := <-frames:
			if !ok {
				// Source ended early. A silent room is not an
				// error; keep waiting for the timeout.
				frames = nil
				continue
			}

			candidate, found, err := a.codec.Decode(frame.Samples)
			if err != nil {
				a.logger.Warn("Codec decode failed",
					slog.Uint64("frame_seq", frame.Seq),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !found {
				continue
			}

			a.candidatesSeen.Add(1)
			reason := protocol.Validate(candidate, contestID, a.clock())
			if reason == protocol.ReasonNone {
				a.setState(StateVerified)
				a.logger.Info("Attendance verified",
					slog.String("contest_id", contestID),
					slog.Uint64("frame_seq", frame.Seq),
				)
				return &VerificationResult{
					Authenticated: true,
					RawMessage:    candidate,
					CompletedAt:   a.clock(),
				}, nil
			}

			// Validation rejections are transient: log and keep
			// listening for further candidates.
			a.candidatesRejected.Add(1)
			a.logger.Debug("Candidate rejected",
				slog.String("contest_id", contestID),
				slog.String("reason", string(reason)),
				slog.Uint64("frame_seq", frame.Seq),
			)
		}
	}
}

// Stats reports how many candidates the last attempts decoded and rejected.
func (a *Authenticator) Stats() (seen, rejected uint64) {
	return a.candidatesSeen.Load(), a.candidatesRejected.Load()
}

func (a *Authenticator) setState(s State) {
	a.state.Store(int32(s))
}

func (a *Authenticator) fail(reason protocol.Reason) *VerificationResult {
	a.setState(StateFailed)
	return &VerificationResult{
		Authenticated: false,
		FailureReason: reason,
		CompletedAt:   a.clock(),
	}
}

// acquisitionReason maps a capture acquisition error to its user-facing
// failure reason.
func acquisitionReason(err error) protocol.Reason {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return protocol.ReasonMicrophoneDenied
	case errors.Is(err, audio.ErrDeviceNotFound):
		return protocol.ReasonMicrophoneNotFound
	default:
		return protocol.ReasonInitializationFailed
	}
}
