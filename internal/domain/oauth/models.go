package oauth

import "time"

// ProviderConfig stores the client registration for the content platform.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	ChannelsURL  string
	RedirectURI  string
	Scopes       []string
	Extra        map[string]string
}

// TokenResponse models the provider token endpoint response. Token material is
// held in byte slices so it can be wiped once the exchange completes.
type TokenResponse struct {
	AccessToken  []byte
	RefreshToken []byte
	ExpiresIn    int64
	TokenType    string
	Scope        string
}

// Zero overwrites token material in place.
func (t *TokenResponse) Zero() {
	if t == nil {
		return
	}
	wipe(t.AccessToken)
	wipe(t.RefreshToken)
	t.AccessToken = nil
	t.RefreshToken = nil
}

// Channel is the normalized channel profile returned by the provider.
type Channel struct {
	ID                    string
	Title                 string
	SubscriberCount       uint64
	ViewCount             uint64
	VideoCount            uint64
	HiddenSubscriberCount bool
	PublishedAt           *time.Time
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
