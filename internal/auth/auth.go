// Package auth signs sellers in with an OAuth2 authorization-code flow and maps them to
// tenants. The signed-in tenant id lives in the session; every API call is scoped by it.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/julienbonastre/produce-shipping/internal/database"
)

// SessionName is the cookie name of the login session
const SessionName = "shipcalc_session"

const sessionStateKey = "oauth_state"

var (
	// ErrOAuthDisabled is returned by the login flow when no provider is configured
	ErrOAuthDisabled = errors.New("oauth login is not configured")
	// ErrInvalidState is returned when the callback state does not match the session
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrNoRefreshToken is returned when a tenant has no stored refresh token to use
	ErrNoRefreshToken = errors.New("no refresh token stored for tenant")
)

// Config holds the provider endpoints and client credentials
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// TenantStore is the slice of the database the login flow needs
type TenantStore interface {
	GetTenant(ctx context.Context, id int64) (*database.Tenant, error)
	GetOrCreateTenantFromLogin(ctx context.Context, subject, email, displayName string) (*database.Tenant, bool, error)
	SaveTenantRefreshToken(ctx context.Context, tenantID int64, encrypted []byte) error
	GetTenantRefreshToken(ctx context.Context, tenantID int64) ([]byte, error)
	SeedDefaultRules(ctx context.Context, tenantID int64) error
}

// UserInfo is the subset of the provider's userinfo response used to identify a seller
type UserInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Authenticator runs the login flow and resolves the tenant of a request
type Authenticator struct {
	oauthConfig *oauth2.Config
	userInfoURL string
	store       TenantStore
	sessions    sessions.Store
	secrets     *database.SecretBox
	logger      *zap.Logger
	httpClient  *http.Client
	devTenantID int64
}

// New creates an Authenticator. secrets may be nil, in which case refresh tokens are not kept.
func New(cfg Config, store TenantStore, sessionStore sessions.Store, secrets *database.SecretBox, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}

	var oauthConfig *oauth2.Config
	if cfg.ClientID != "" && cfg.AuthURL != "" && cfg.TokenURL != "" {
		oauthConfig = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		}
	}

	return &Authenticator{
		oauthConfig: oauthConfig,
		userInfoURL: cfg.UserInfoURL,
		store:       store,
		sessions:    sessionStore,
		secrets:     secrets,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// OAuthEnabled reports whether a provider is configured
func (a *Authenticator) OAuthEnabled() bool {
	return a.oauthConfig != nil
}

// SetDevTenant makes every request act as the given tenant, bypassing login
func (a *Authenticator) SetDevTenant(tenantID int64) {
	a.devTenantID = tenantID
}

// DevMode reports whether the login bypass is active
func (a *Authenticator) DevMode() bool {
	return a.devTenantID > 0
}

// BeginLogin stores a fresh state in the session and returns the provider URL to redirect to
func (a *Authenticator) BeginLogin(w http.ResponseWriter, r *http.Request) (string, error) {
	if a.oauthConfig == nil {
		return "", ErrOAuthDisabled
	}

	state, err := generateState()
	if err != nil {
		return "", err
	}

	session, err := a.sessions.Get(r, SessionName)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	session.Values[sessionStateKey] = state
	if err := session.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	return a.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteLogin checks state, exchanges the code, and signs the session in as the
// seller's tenant, creating the tenant on first login.
func (a *Authenticator) CompleteLogin(w http.ResponseWriter, r *http.Request, state, code string) (*database.Tenant, error) {
	if a.oauthConfig == nil {
		return nil, ErrOAuthDisabled
	}
	ctx := r.Context()

	session, err := a.sessions.Get(r, SessionName)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	expected, _ := session.Values[sessionStateKey].(string)
	delete(session.Values, sessionStateKey)
	if expected == "" || state != expected {
		return nil, ErrInvalidState
	}
	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	info, err := a.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	tenant, created, err := a.store.GetOrCreateTenantFromLogin(ctx, info.Subject, info.Email, info.Name)
	if err != nil {
		return nil, err
	}
	if created {
		if err := a.store.SeedDefaultRules(ctx, tenant.ID); err != nil {
			a.logger.Warn("failed to seed default rules", zap.Int64("tenant_id", tenant.ID), zap.Error(err))
		}
		a.logger.Info("tenant created", zap.Int64("tenant_id", tenant.ID), zap.String("subject", info.Subject))
	}

	if err := a.storeRefreshToken(ctx, tenant.ID, token.RefreshToken); err != nil {
		return nil, err
	}

	session.Values[database.SessionTenantKey] = tenant.ID
	if err := session.Save(r, w); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return tenant, nil
}

func (a *Authenticator) storeRefreshToken(ctx context.Context, tenantID int64, refreshToken string) error {
	if refreshToken == "" || a.secrets == nil {
		return nil
	}
	sealed, err := a.secrets.Seal(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	if err := a.store.SaveTenantRefreshToken(ctx, tenantID, sealed); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// RefreshProfile uses the tenant's stored refresh token to get a new access token and
// updates the tenant's email and display name from the provider. A rotated refresh
// token replaces the stored one.
func (a *Authenticator) RefreshProfile(ctx context.Context, tenantID int64) (*database.Tenant, error) {
	if a.oauthConfig == nil {
		return nil, ErrOAuthDisabled
	}
	if a.secrets == nil {
		return nil, ErrNoRefreshToken
	}

	tenant, err := a.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sealed, err := a.store.GetTenantRefreshToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(sealed) == 0 {
		return nil, ErrNoRefreshToken
	}
	refreshToken, err := a.secrets.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := a.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	info, err := a.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if info.Subject != tenant.Subject {
		return nil, fmt.Errorf("provider account %q does not match tenant", info.Subject)
	}

	// Existing tenant, so this only updates the profile
	tenant, _, err = a.store.GetOrCreateTenantFromLogin(ctx, info.Subject, info.Email, info.Name)
	if err != nil {
		return nil, err
	}

	if token.RefreshToken != refreshToken {
		if err := a.storeRefreshToken(ctx, tenantID, token.RefreshToken); err != nil {
			return nil, err
		}
	}

	a.logger.Info("tenant profile refreshed", zap.Int64("tenant_id", tenantID))
	return tenant, nil
}

func (a *Authenticator) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	if a.userInfoURL == "" {
		return nil, errors.New("userinfo endpoint not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo error (status %d): %s", resp.StatusCode, string(body))
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if info.Subject == "" {
		return nil, errors.New("userinfo has no subject")
	}
	return &info, nil
}

type sessionRevoker interface {
	RevokeTenantSessions(ctx context.Context, tenantID int64) (int64, error)
}

// Logout ends the session. With everywhere set, every session of the tenant is revoked
// as well, when the session store supports it.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request, everywhere bool) error {
	session, err := a.sessions.Get(r, SessionName)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if tenantID, ok := database.SessionTenantID(session); ok && everywhere {
		if revoker, ok := a.sessions.(sessionRevoker); ok {
			n, err := revoker.RevokeTenantSessions(r.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("failed to revoke sessions: %w", err)
			}
			a.logger.Info("sessions revoked", zap.Int64("tenant_id", tenantID), zap.Int64("count", n))
		}
	}
	delete(session.Values, database.SessionTenantKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// CurrentTenant returns the tenant of the request: the dev tenant when set, otherwise
// the one signed into the session.
func (a *Authenticator) CurrentTenant(r *http.Request) (int64, bool) {
	if a.devTenantID > 0 {
		return a.devTenantID, true
	}
	session, err := a.sessions.Get(r, SessionName)
	if err != nil {
		return 0, false
	}
	return database.SessionTenantID(session)
}

func generateState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type tenantKey struct{}

// WithTenant returns a context scoped to tenantID
func WithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the tenant id set by WithTenant
func TenantFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(tenantKey{}).(int64)
	return id, ok && id > 0
}
