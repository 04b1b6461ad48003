package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// stateTTL is how long a user has to complete the provider's consent screen.
const stateTTL = 10 * time.Minute

const stateIssuer = "giteemirror"

// GiteeEndpoint is Gitee's OAuth2 endpoint.
var GiteeEndpoint = oauth2.Endpoint{
	AuthURL:   "https://gitee.com/oauth/authorize",
	TokenURL:  "https://gitee.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// NewOAuth2Config builds the client configuration for platform. The
// redirect URL points back at this service's callback route. Returns nil when
// clientID is empty, which leaves the platform unconfigured.
func NewOAuth2Config(platform model.Platform, clientID, clientSecret, redirectBase string) *oauth2.Config {
	if clientID == "" {
		return nil
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  strings.TrimRight(redirectBase, "/") + "/api/v1/auth/oauth/" + string(platform) + "/callback",
	}

	switch platform {
	case model.PlatformGitHub:
		cfg.Endpoint = githuboauth.Endpoint
		cfg.Scopes = []string{"repo", "read:user"}
	case model.PlatformGitee:
		cfg.Endpoint = GiteeEndpoint
		cfg.Scopes = []string{"user_info", "projects"}
	}
	return cfg
}

// stateClaims binds an authorization round trip to the user and platform
// that started it.
type stateClaims struct {
	UserID   int64  `json:"uid"`
	Platform string `json:"platform"`
	jwt.RegisteredClaims
}

// OAuthService links accounts through the providers' authorization code
// flow. The state parameter is a signed, short-lived JWT, so no server-side
// session is needed between login and callback.
type OAuthService struct {
	configs     map[model.Platform]*oauth2.Config
	creds       *CredentialService
	hosts       *HostRegistry
	stateKey    []byte
	frontendURL string
	now         func() time.Time
}

// NewOAuthService creates an OAuthService. Platforms missing from configs,
// or mapped to nil, are reported as not configured.
func NewOAuthService(
	configs map[model.Platform]*oauth2.Config,
	creds *CredentialService,
	hosts *HostRegistry,
	stateKey []byte,
	frontendURL string,
) *OAuthService {
	return &OAuthService{
		configs:     configs,
		creds:       creds,
		hosts:       hosts,
		stateKey:    stateKey,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

// LoginURL returns the provider authorization URL for the user.
func (s *OAuthService) LoginURL(platform string, userID int64) (string, error) {
	p, cfg, err := s.config(platform)
	if err != nil {
		return "", err
	}
	if userID <= 0 {
		return "", fmt.Errorf("%w: user id must be positive", driven.ErrInvalidInput)
	}

	state, err := s.signState(userID, p)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

// Callback completes the flow: it verifies state, exchanges code for a token,
// looks up the account name and relinks the platform. It returns the
// frontend URL to redirect the browser to.
func (s *OAuthService) Callback(ctx context.Context, platform, code, state string) (string, error) {
	p, cfg, err := s.config(platform)
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", driven.ErrInvalidInput)
	}

	claims, err := s.verifyState(state)
	if err != nil {
		return "", err
	}
	if claims.Platform != string(p) {
		return "", fmt.Errorf("%w: state was issued for %s", driven.ErrInvalidInput, claims.Platform)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return "", fmt.Errorf("%w: %s rejected the authorization code", driven.ErrInvalidInput, p)
		}
		return "", fmt.Errorf("%w: exchanging %s authorization code: %w", driven.ErrUpstreamUnavailable, p, err)
	}

	host, err := s.hosts.Get(p)
	if err != nil {
		return "", err
	}
	username, err := host.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("looking up %s account: %w", p, err)
	}

	if _, err := s.creds.Relink(ctx, claims.UserID, string(p), username, token.AccessToken); err != nil {
		return "", err
	}

	slog.Info("oauth link completed", "user_id", claims.UserID, "platform", p, "username", username)
	return s.frontendURL + "/settings/accounts?linked=" + url.QueryEscape(string(p)), nil
}

func (s *OAuthService) config(platform string) (model.Platform, *oauth2.Config, error) {
	p, ok := model.ParsePlatform(platform)
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown platform %q", driven.ErrInvalidInput, platform)
	}
	cfg := s.configs[p]
	if cfg == nil {
		return "", nil, fmt.Errorf("%w: oauth is not configured for %s", driven.ErrInvalidInput, p)
	}
	return p, cfg, nil
}

func (s *OAuthService) signState(userID int64, platform model.Platform) (string, error) {
	now := s.now().UTC()
	claims := stateClaims{
		UserID:   userID,
		Platform: string(platform),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateKey)
	if err != nil {
		return "", fmt.Errorf("signing oauth state: %w", err)
	}
	return signed, nil
}

func (s *OAuthService) verifyState(state string) (stateClaims, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(*jwt.Token) (any, error) { return s.stateKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return stateClaims{}, fmt.Errorf("%w: invalid oauth state: %w", driven.ErrInvalidInput, err)
	}
	return claims, nil
}
