package verification

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domainoauth "github.com/smallbiznis/valora-verify/internal/domain/oauth"
	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/metrics"
	"github.com/smallbiznis/valora-verify/internal/repository"
)

const defaultSessionTTL = 10 * time.Minute

// Exchanger turns an authorization code into account data for a claim.
type Exchanger interface {
	Exchange(ctx context.Context, code string, claim domain.ClaimType) (domain.AccountWitness, error)
}

// ProofGenerator derives a proof that witness backs claim for identity.
type ProofGenerator interface {
	Generate(ctx context.Context, claim domain.ClaimType, witness domain.AccountWitness, identity domain.IdentityRef) (domain.ProofBlob, error)
}

// Submitter anchors a proof in the registry.
type Submitter interface {
	Submit(ctx context.Context, in SubmitInput) (*domain.VerifiedIdentityRecord, error)
}

// Options tunes session handling.
type Options struct {
	SessionTTL time.Duration
	Now        func() time.Time
}

// Service starts verification handshakes and drives callbacks through the
// exchange, proving and submission stages.
type Service struct {
	sessions  repository.SessionStore
	exchanger Exchanger
	generator ProofGenerator
	submitter Submitter
	provider  domainoauth.ProviderConfig
	ttl       time.Duration
	now       func() time.Time
	recorder  *metrics.Recorder
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService wires the pipeline.
func NewService(
	sessions repository.SessionStore,
	exchanger Exchanger,
	generator ProofGenerator,
	submitter Submitter,
	provider domainoauth.ProviderConfig,
	opts Options,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *Service {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		sessions:  sessions,
		exchanger: exchanger,
		generator: generator,
		submitter: submitter,
		provider:  provider,
		ttl:       ttl,
		now:       now,
		recorder:  recorder,
		logger:    logger,
		tracer:    otel.Tracer("github.com/smallbiznis/valora-verify/internal/service/verification"),
	}
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
