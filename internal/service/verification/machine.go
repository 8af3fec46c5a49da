package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/telemetry"
)

// CallbackInput captures the provider redirect query.
type CallbackInput struct {
	Code  string
	State string
	// Error is the provider's error parameter, set when consent was denied.
	Error string
}

// Run is one pass of the state machine for a single session.
type Run struct {
	Identity domain.IdentityRef
	Claim    domain.ClaimType
	State    domain.State
	History  []domain.State
	Result   domain.VerificationResult
	Err      error

	witness *domain.AccountWitness
	entered time.Time
}

func newRun(now time.Time) *Run {
	return &Run{
		State:   domain.StateIdle,
		History: []domain.State{domain.StateIdle},
		Result:  domain.VerificationResult{Status: domain.StatusPending},
		entered: now,
	}
}

func (r *Run) advance(to domain.State) error {
	if !domain.CanTransition(r.State, to) {
		return fmt.Errorf("illegal transition %s -> %s", r.State, to)
	}
	r.State = to
	r.History = append(r.History, to)
	return nil
}

// HandleCallback consumes the session named by in.State and drives it to a
// terminal state. The returned error, when non-nil, equals run.Err and is
// classified by domain.ReasonOf. The session no longer exists afterwards
// whatever the outcome.
func (s *Service) HandleCallback(ctx context.Context, in CallbackInput) (*Run, error) {
	ctx, span := s.startSpan(ctx, "Verification.HandleCallback")
	defer span.End()

	run := newRun(s.now())

	session, err := s.consume(ctx, in.State)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	run.Identity = session.Identity
	run.Claim = session.RequestedClaim
	span.SetAttributes(telemetry.ClaimKey.String(run.Claim.String()))
	if err := s.enter(ctx, run, domain.StateAwaitingCallback); err != nil {
		return s.fail(ctx, run, err)
	}

	if denied := strings.TrimSpace(in.Error); denied != "" {
		return s.fail(ctx, run, fmt.Errorf("%w: %w", domain.ErrExchangeFailed, &domain.ProviderRejectedError{Code: denied}))
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return s.fail(ctx, run, fmt.Errorf("%w: authorization code missing", domain.ErrInvalidSession))
	}

	if err := s.enter(ctx, run, domain.StateExchangingCode); err != nil {
		return s.fail(ctx, run, err)
	}
	witness, err := s.exchanger.Exchange(ctx, code, run.Claim)
	if err != nil {
		return s.fail(ctx, run, ensure(err, domain.ErrExchangeFailed))
	}
	run.witness = &witness

	if err := s.enter(ctx, run, domain.StateGeneratingProof); err != nil {
		return s.fail(ctx, run, err)
	}
	proof, err := s.generator.Generate(ctx, run.Claim, witness, run.Identity)
	if err != nil {
		return s.fail(ctx, run, ensure(err, domain.ErrProofGenerationFailed))
	}

	if err := s.enter(ctx, run, domain.StateSubmittingProof); err != nil {
		return s.fail(ctx, run, err)
	}
	record, err := s.submitter.Submit(ctx, SubmitInput{
		Identity:     run.Identity,
		Claim:        run.Claim,
		Proof:        proof,
		Declared:     witness.Disclosed(run.Claim),
		ChannelID:    witness.ChannelID,
		ChannelTitle: witness.Title,
		PublishedAt:  witness.PublishedAt,
	})
	if err != nil {
		var rejected *domain.SubmissionRejectedError
		if !errors.As(err, &rejected) {
			err = fmt.Errorf("%w: %w", &domain.SubmissionRejectedError{Reason: "registry unavailable"}, err)
		}
		return s.fail(ctx, run, err)
	}

	if err := s.enter(ctx, run, domain.StateSucceeded); err != nil {
		return s.fail(ctx, run, err)
	}
	metrics := record.Metrics()
	run.Result = domain.VerificationResult{
		IsVerified: true,
		Status:     domain.StatusVerified,
		Identity:   record,
		Metrics:    &metrics,
	}
	s.recorder.Completed(run.Claim.String(), string(domain.StateSucceeded))
	s.log().Info("verification succeeded",
		zap.String("identity", run.Identity.String()),
		zap.String("claim", run.Claim.String()),
		zap.String("channel_id", record.ChannelID),
	)
	return run, nil
}

func (s *Service) consume(ctx context.Context, token string) (*domain.OAuthSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: state missing", domain.ErrInvalidSession)
	}
	session, err := s.sessions.ConsumeSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: unknown or consumed state", domain.ErrInvalidSession)
	}
	if session.Expired(s.now(), s.ttl) {
		return nil, fmt.Errorf("%w: session expired", domain.ErrInvalidSession)
	}
	if !session.RequestedClaim.Valid() {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSession, domain.ErrInvalidClaim)
	}
	return session, nil
}

// enter moves run to the next state and records how long the previous one took.
func (s *Service) enter(ctx context.Context, run *Run, to domain.State) error {
	now := s.now()
	s.recorder.ObserveStage(string(run.State), now.Sub(run.entered))
	run.entered = now
	trace.SpanFromContext(ctx).AddEvent("transition", trace.WithAttributes(
		telemetry.StateKey.String(string(to)),
	))
	return run.advance(to)
}

func (s *Service) fail(ctx context.Context, run *Run, err error) (*Run, error) {
	from := run.State
	if advanceErr := run.advance(domain.StateFailed); advanceErr != nil {
		err = errors.Join(err, advanceErr)
	}
	run.Err = err
	run.Result = domain.VerificationResult{
		IsVerified: false,
		Status:     domain.StatusFailed,
		Error:      domain.UserMessage(err),
	}

	reason := domain.ReasonOf(err)
	claim := "unknown"
	if run.Claim.Valid() {
		claim = run.Claim.String()
	}
	s.recorder.Completed(claim, string(reason))

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		telemetry.ReasonKey.String(string(reason)),
		telemetry.StateKey.String(string(from)),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(reason))

	fields := []zap.Field{
		zap.String("claim", claim),
		zap.String("state", string(from)),
		zap.String("reason", string(reason)),
		zap.Error(err),
	}
	if !run.Identity.IsZero() {
		fields = append(fields, zap.String("identity", run.Identity.String()))
	}
	if run.witness != nil {
		fields = append(fields, zap.Any("witness_shape", run.witness.Shape()))
	}
	s.log().Warn("verification failed", fields...)
	return run, err
}

// ensure wraps err with category unless it already carries it.
func ensure(err, category error) error {
	if errors.Is(err, category) {
		return err
	}
	return fmt.Errorf("%w: %w", category, err)
}
