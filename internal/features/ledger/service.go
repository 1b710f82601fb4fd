package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ledger-sync/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var ErrInvalidState = errors.New("unknown or expired oauth state")

const stateTTL = 10 * time.Minute

// ConnectionService owns the OAuth connect/disconnect lifecycle.
type ConnectionService interface {
	AuthorizationURL() (string, string)
	Connect(ctx context.Context, code, state, realmID string) (*ConnectionStatus, error)
	Status(ctx context.Context) (*ConnectionStatus, error)
	Disconnect(ctx context.Context) error
	CompanyCurrency(ctx context.Context) (*CompanyCurrency, error)
}

type ConnectionServiceImpl struct {
	cfg     *config.Config
	vault   TokenVault
	factory ClientFactory
	oauth   *oauth2.Config
	http    *http.Client
	log     *zap.Logger

	mu     sync.Mutex
	states map[string]time.Time
}

func NewConnectionService(cfg *config.Config, vault TokenVault, factory ClientFactory, log *zap.Logger) ConnectionService {
	return &ConnectionServiceImpl{
		cfg:     cfg,
		vault:   vault,
		factory: factory,
		oauth:   OAuthConfig(cfg),
		http:    &http.Client{Timeout: cfg.LedgerRequestTimeout},
		log:     log.Named("ledger_connection"),
		states:  make(map[string]time.Time),
	}
}

// AuthorizationURL returns the consent URL and the state it was issued with.
func (s *ConnectionServiceImpl) AuthorizationURL() (string, string) {
	state := uuid.NewString()

	s.mu.Lock()
	now := time.Now()
	for k, issued := range s.states {
		if now.Sub(issued) > stateTTL {
			delete(s.states, k)
		}
	}
	s.states[state] = now
	s.mu.Unlock()

	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), state
}

func (s *ConnectionServiceImpl) consumeState(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	issued, ok := s.states[state]
	delete(s.states, state)
	return ok && time.Since(issued) <= stateTTL
}

func (s *ConnectionServiceImpl) Connect(ctx context.Context, code, state, realmID string) (*ConnectionStatus, error) {
	if code == "" || realmID == "" {
		return nil, errors.New("code and realmId are required")
	}
	if !s.consumeState(state) {
		return nil, ErrInvalidState
	}

	tok, err := s.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, s.http), code)
	if err != nil {
		s.log.Error("Authorization code exchange failed", zap.Error(err))
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	session := &OAuthSession{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		RealmID:      realmID,
		TokenExpiry:  tok.Expiry,
		ConnectedAt:  time.Now(),
	}
	if err := s.vault.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("store ledger connection: %w", err)
	}
	s.factory.ResetCache()

	s.log.Info("Ledger connected", zap.String("realm_id", realmID), zap.Bool("encrypted", s.vault.Encrypted()))
	return s.Status(ctx)
}

func (s *ConnectionServiceImpl) Status(ctx context.Context) (*ConnectionStatus, error) {
	session, err := s.vault.Load(ctx)
	if errors.Is(err, ErrNotConnected) {
		return &ConnectionStatus{Connected: false, Encrypted: s.vault.Encrypted()}, nil
	}
	if err != nil {
		return nil, err
	}
	connectedAt := session.ConnectedAt
	expiry := session.TokenExpiry
	return &ConnectionStatus{
		Connected:   true,
		RealmID:     session.RealmID,
		ConnectedAt: &connectedAt,
		TokenExpiry: &expiry,
		Encrypted:   s.vault.Encrypted(),
	}, nil
}

// Disconnect revokes at the provider when it can and always clears local state.
func (s *ConnectionServiceImpl) Disconnect(ctx context.Context) error {
	session, err := s.vault.Load(ctx)
	if err == nil {
		token := session.RefreshToken
		if token == "" {
			token = session.AccessToken
		}
		if revokeErr := s.revoke(ctx, token); revokeErr != nil {
			s.log.Warn("Token revocation failed, clearing local connection anyway", zap.Error(revokeErr))
		}
	} else if !errors.Is(err, ErrNotConnected) {
		s.log.Warn("Could not load connection for revocation", zap.Error(err))
	}

	s.factory.ResetCache()
	if err := s.vault.Clear(ctx); err != nil {
		return fmt.Errorf("clear ledger connection: %w", err)
	}
	s.log.Info("Ledger disconnected")
	return nil
}

func (s *ConnectionServiceImpl) revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.LedgerRevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(url.QueryEscape(s.cfg.LedgerClientID), url.QueryEscape(s.cfg.LedgerClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("revoke returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (s *ConnectionServiceImpl) CompanyCurrency(ctx context.Context) (*CompanyCurrency, error) {
	client, err := s.factory.New(ctx)
	if err != nil {
		return nil, err
	}
	return client.CompanyCurrency(ctx)
}
