package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainoauth "github.com/smallbiznis/valora-verify/internal/domain/oauth"
	domain "github.com/smallbiznis/valora-verify/internal/domain/verification"
)

type fakeProviderClient struct {
	token      *domainoauth.TokenResponse
	channel    *domainoauth.Channel
	tokenErr   error
	channelErr error
	seenToken  string
	issued     []*domainoauth.TokenResponse
	access     [][]byte
}

func (f *fakeProviderClient) ExchangeCode(context.Context, domainoauth.ProviderConfig, string) (*domainoauth.TokenResponse, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	token := &domainoauth.TokenResponse{
		AccessToken:  append([]byte(nil), f.token.AccessToken...),
		RefreshToken: append([]byte(nil), f.token.RefreshToken...),
		ExpiresIn:    f.token.ExpiresIn,
		TokenType:    f.token.TokenType,
		Scope:        f.token.Scope,
	}
	if len(f.token.AccessToken) == 0 {
		token.AccessToken = nil
	}
	f.issued = append(f.issued, token)
	f.access = append(f.access, token.AccessToken)
	return token, nil
}

func (f *fakeProviderClient) FetchChannel(_ context.Context, _ domainoauth.ProviderConfig, accessToken []byte) (*domainoauth.Channel, error) {
	f.seenToken = string(accessToken)
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return f.channel, nil
}

func newFakeProviderClient() *fakeProviderClient {
	return &fakeProviderClient{
		token: &domainoauth.TokenResponse{
			AccessToken:  []byte("ya29.secret"),
			RefreshToken: []byte("1//refresh"),
		},
		channel: &domainoauth.Channel{
			ID:              "UC123",
			Title:           "Creator",
			SubscriberCount: 342,
			ViewCount:       15200,
			VideoCount:      17,
		},
	}
}

func TestCodeExchanger_ZeroesTokenAfterUse(t *testing.T) {
	client := newFakeProviderClient()
	exchanger := NewCodeExchanger(client, youtubeProvider(), zap.NewNop())

	witness, err := exchanger.Exchange(context.Background(), "auth-code", domain.ClaimSubscriberCount)
	require.NoError(t, err)
	require.Equal(t, "UC123", witness.ChannelID)
	require.Equal(t, uint64(342), witness.SubscriberCount)
	require.Equal(t, "ya29.secret", client.seenToken)

	require.Len(t, client.issued, 1)
	require.Nil(t, client.issued[0].AccessToken)
	access := client.access[0]
	require.NotEmpty(t, access)
	require.Equal(t, make([]byte, len(access)), access)
}

func TestCodeExchanger_HiddenSubscribers(t *testing.T) {
	client := newFakeProviderClient()
	client.channel.HiddenSubscriberCount = true
	client.channel.SubscriberCount = 0
	exchanger := NewCodeExchanger(client, youtubeProvider(), zap.NewNop())

	for _, claim := range []domain.ClaimType{domain.ClaimSubscriberCount, domain.ClaimCombined} {
		_, err := exchanger.Exchange(context.Background(), "auth-code", claim)
		require.ErrorIs(t, err, domain.ErrExchangeFailed, claim.String())
		require.ErrorIs(t, err, domain.ErrWitnessUnavailable, claim.String())
	}

	for _, claim := range []domain.ClaimType{domain.ClaimChannelOwnership, domain.ClaimViewCount, domain.ClaimVideoEngagement} {
		_, err := exchanger.Exchange(context.Background(), "auth-code", claim)
		require.NoError(t, err, claim.String())
	}
	require.Len(t, client.issued, 5)
}

func TestCodeExchanger_ProviderErrors(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*fakeProviderClient)
		want  error
	}{
		{
			name:  "token rejected",
			setup: func(f *fakeProviderClient) { f.tokenErr = &domain.ProviderRejectedError{Status: 400, Code: "invalid_grant"} },
		},
		{
			name:  "provider down",
			setup: func(f *fakeProviderClient) { f.tokenErr = domain.ErrProviderUnavailable },
			want:  domain.ErrProviderUnavailable,
		},
		{
			name:  "empty token",
			setup: func(f *fakeProviderClient) { f.token = &domainoauth.TokenResponse{} },
			want:  domain.ErrMalformedResponse,
		},
		{
			name:  "channel missing",
			setup: func(f *fakeProviderClient) { f.channelErr = domain.ErrMalformedResponse },
			want:  domain.ErrMalformedResponse,
		},
		{
			name:  "no channel id",
			setup: func(f *fakeProviderClient) { f.channel.ID = "" },
			want:  domain.ErrMalformedResponse,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeProviderClient()
			tc.setup(client)
			exchanger := NewCodeExchanger(client, youtubeProvider(), zap.NewNop())
			_, err := exchanger.Exchange(context.Background(), "auth-code", domain.ClaimViewCount)
			require.ErrorIs(t, err, domain.ErrExchangeFailed)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}

	t.Run("rejection keeps code", func(t *testing.T) {
		client := newFakeProviderClient()
		client.tokenErr = &domain.ProviderRejectedError{Status: 400, Code: "invalid_grant"}
		_, err := NewCodeExchanger(client, youtubeProvider(), nil).Exchange(context.Background(), "c", domain.ClaimViewCount)
		var rejected *domain.ProviderRejectedError
		require.True(t, errors.As(err, &rejected))
		require.Equal(t, "invalid_grant", rejected.Code)
	})
}
