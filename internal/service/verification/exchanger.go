package verification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/valora-verify/internal/adapter/oauth"
	domainoauth "github.com/smallbiznis/valora-verify/internal/domain/oauth"
	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
)

// CodeExchanger redeems authorization codes against the provider and reads the
// authorized channel. Token material never leaves Exchange.
type CodeExchanger struct {
	client   oauthadapter.ProviderClient
	provider domainoauth.ProviderConfig
	logger   *zap.Logger
}

// NewCodeExchanger builds an exchanger for one provider registration.
func NewCodeExchanger(client oauthadapter.ProviderClient, provider domainoauth.ProviderConfig, logger *zap.Logger) *CodeExchanger {
	return &CodeExchanger{client: client, provider: provider, logger: logger}
}

// Exchange returns the witness for claim. Every failure wraps
// ErrExchangeFailed together with its cause.
func (e *CodeExchanger) Exchange(ctx context.Context, code string, claim domain.ClaimType) (domain.AccountWitness, error) {
	if !claim.Valid() {
		return domain.AccountWitness{}, fmt.Errorf("%w: %w", domain.ErrExchangeFailed, domain.ErrInvalidClaim)
	}

	token, err := e.client.ExchangeCode(ctx, e.provider, code)
	if err != nil {
		return domain.AccountWitness{}, fmt.Errorf("%w: token: %w", domain.ErrExchangeFailed, err)
	}
	defer token.Zero()
	if len(token.AccessToken) == 0 {
		return domain.AccountWitness{}, fmt.Errorf("%w: token: %w", domain.ErrExchangeFailed, domain.ErrMalformedResponse)
	}

	channel, err := e.client.FetchChannel(ctx, e.provider, token.AccessToken)
	if err != nil {
		return domain.AccountWitness{}, fmt.Errorf("%w: channel: %w", domain.ErrExchangeFailed, err)
	}

	witness := domain.AccountWitness{
		ChannelID:             channel.ID,
		Title:                 channel.Title,
		SubscriberCount:       channel.SubscriberCount,
		ViewCount:             channel.ViewCount,
		VideoCount:            channel.VideoCount,
		HiddenSubscriberCount: channel.HiddenSubscriberCount,
		PublishedAt:           channel.PublishedAt,
	}
	if err := validateWitness(witness, claim); err != nil {
		e.log().Warn("witness cannot back claim",
			zap.String("claim", claim.String()),
			zap.Any("witness_shape", witness.Shape()),
			zap.Error(err),
		)
		return domain.AccountWitness{}, fmt.Errorf("%w: %w", domain.ErrExchangeFailed, err)
	}
	return witness, nil
}

func validateWitness(w domain.AccountWitness, claim domain.ClaimType) error {
	if w.ChannelID == "" {
		return domain.ErrMalformedResponse
	}
	if w.HiddenSubscriberCount && claim.Discloses().Has(domain.MetricSubscribers) {
		return errors.Join(domain.ErrWitnessUnavailable, errors.New("subscriber count is hidden"))
	}
	return nil
}

func (e *CodeExchanger) log() *zap.Logger {
	if e != nil && e.logger != nil {
		return e.logger
	}
	return zap.L()
}
