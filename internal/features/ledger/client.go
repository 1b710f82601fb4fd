package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Client is an authenticated session against one ledger company.
type Client interface {
	RealmID() string
	MakeRequest(ctx context.Context, method, endpoint string, payload any, query url.Values) (map[string]any, error)
	Get(ctx context.Context, objectType, id string) (map[string]any, error)
	Create(ctx context.Context, objectType string, payload map[string]any) (map[string]any, error)
	Update(ctx context.Context, objectType, id string, fields map[string]any) (map[string]any, error)
	Exists(ctx context.Context, objectType, id string) (bool, error)
	CompanyCurrency(ctx context.Context) (*CompanyCurrency, error)
}

// ClientFactory builds a Client from the session currently in the vault.
// Every call reads the vault; nothing is memoized across calls except the
// company currency probe.
type ClientFactory interface {
	New(ctx context.Context) (Client, error)
	ResetCache()
}

type ClientFactoryImpl struct {
	cfg      *config.Config
	vault    TokenVault
	oauth    *oauth2.Config
	http     *http.Client
	pacer    *pacer
	currency *currencyCache
	log      *zap.Logger
}

func NewClientFactory(cfg *config.Config, vault TokenVault, log *zap.Logger) ClientFactory {
	return newClientFactory(cfg, vault, &http.Client{}, log)
}

func newClientFactory(cfg *config.Config, vault TokenVault, httpClient *http.Client, log *zap.Logger) *ClientFactoryImpl {
	return &ClientFactoryImpl{
		cfg:      cfg,
		vault:    vault,
		oauth:    OAuthConfig(cfg),
		http:     httpClient,
		pacer:    &pacer{interval: cfg.LedgerMinInterval},
		currency: &currencyCache{ttl: time.Hour},
		log:      log.Named("ledger_client"),
	}
}

func (f *ClientFactoryImpl) New(ctx context.Context) (Client, error) {
	session, err := f.vault.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &restClient{
		cfg:      f.cfg,
		oauth:    f.oauth,
		http:     f.http,
		vault:    f.vault,
		pacer:    f.pacer,
		currency: f.currency,
		log:      f.log.With(zap.String("realm_id", session.RealmID)),
		realm:    session.RealmID,
		session:  session,
	}, nil
}

func (f *ClientFactoryImpl) ResetCache() {
	f.currency.reset()
}

// OAuthConfig describes the ledger's OAuth application. Client credentials go
// in the Basic auth header on every token call.
func OAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.LedgerClientID,
		ClientSecret: cfg.LedgerClientSecret,
		RedirectURL:  cfg.LedgerRedirectURI,
		Scopes:       cfg.LedgerScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.LedgerAuthURL,
			TokenURL:  cfg.LedgerTokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

type restClient struct {
	cfg      *config.Config
	oauth    *oauth2.Config
	http     *http.Client
	vault    TokenVault
	pacer    *pacer
	currency *currencyCache
	log      *zap.Logger
	realm    string

	mu      sync.Mutex
	session *OAuthSession
}

func (c *restClient) RealmID() string {
	return c.realm
}

func (c *restClient) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.AccessToken
}

// MakeRequest sends one request. A 401 triggers exactly one refresh and one
// retry; a second 401 is terminal.
func (c *restClient) MakeRequest(ctx context.Context, method, endpoint string, payload any, query url.Values) (map[string]any, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	token := c.accessToken()
	status, respBody, err := c.send(ctx, method, endpoint, body, query, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		c.log.Warn("Ledger rejected access token, refreshing", zap.String("endpoint", endpoint))
		token, err = c.refresh(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
		}
		status, respBody, err = c.send(ctx, method, endpoint, body, query, token)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			c.log.Error("Ledger rejected refreshed token", zap.String("endpoint", endpoint))
			return nil, ErrAuthExpired
		}
	}

	return decodeResponse(status, respBody)
}

func (c *restClient) send(ctx context.Context, method, endpoint string, body []byte, query url.Values, token string) (int, []byte, error) {
	if err := c.pacer.wait(ctx); err != nil {
		return 0, nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.LedgerRequestTimeout)
	defer cancel()

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if c.cfg.LedgerMinorVersion != "" && q.Get("minorversion") == "" {
		q.Set("minorversion", c.cfg.LedgerMinorVersion)
	}

	target := fmt.Sprintf("%s/v3/company/%s/%s",
		strings.TrimRight(c.cfg.LedgerAPIBaseURL, "/"),
		url.PathEscape(c.realm),
		strings.TrimLeft(endpoint, "/"))
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("Ledger request failed", zap.String("method", method), zap.String("endpoint", endpoint), zap.Error(err))
		return 0, nil, fmt.Errorf("ledger %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read ledger response: %w", err)
	}

	c.log.Debug("Ledger request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return resp.StatusCode, respBody, nil
}

// refresh swaps in a new access token. If another caller already replaced the
// token that was rejected, that one is used instead of exchanging again.
func (c *restClient) refresh(ctx context.Context, rejected string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.AccessToken != rejected {
		return c.session.AccessToken, nil
	}

	if stored, err := c.vault.Load(ctx); err == nil && stored.AccessToken != "" && stored.AccessToken != rejected {
		c.log.Info("Adopting tokens refreshed by another client")
		c.session = stored
		return stored.AccessToken, nil
	}

	c.log.Info("Refreshing rejected access token", zap.String("token", logger.MaskToken(rejected)))
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, c.http)
	expired := &oauth2.Token{
		RefreshToken: c.session.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	tok, err := c.oauth.TokenSource(oauthCtx, expired).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			c.log.Error("Token refresh rejected", zap.String("error_code", retrieveErr.ErrorCode))
		} else {
			c.log.Error("Token refresh failed", zap.Error(err))
		}
		return "", err
	}

	next := *c.session
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.TokenExpiry = tok.Expiry
	c.session = &next

	if err := c.vault.Save(ctx, &next); err != nil {
		c.log.Error("Failed to persist refreshed tokens, continuing with in-memory session", zap.Error(err))
	} else {
		c.log.Info("Access token refreshed",
			zap.String("token", logger.MaskToken(next.AccessToken)),
			zap.Time("expiry", tok.Expiry))
	}

	return next.AccessToken, nil
}

func (c *restClient) Get(ctx context.Context, objectType, id string) (map[string]any, error) {
	resp, err := c.MakeRequest(ctx, http.MethodGet, strings.ToLower(objectType)+"/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	return unwrapObject(resp, objectType)
}

func (c *restClient) Create(ctx context.Context, objectType string, payload map[string]any) (map[string]any, error) {
	resp, err := c.MakeRequest(ctx, http.MethodPost, strings.ToLower(objectType), payload, nil)
	if err != nil {
		return nil, err
	}
	return unwrapObject(resp, objectType)
}

// Update performs a sparse update, reading the current SyncToken first.
func (c *restClient) Update(ctx context.Context, objectType, id string, fields map[string]any) (map[string]any, error) {
	current, err := c.Get(ctx, objectType, id)
	if err != nil {
		return nil, err
	}

	body := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		body[k] = v
	}
	body["Id"] = id
	body["SyncToken"] = current["SyncToken"]
	body["sparse"] = true

	resp, err := c.MakeRequest(ctx, http.MethodPost, strings.ToLower(objectType), body, nil)
	if err != nil {
		return nil, err
	}
	return unwrapObject(resp, objectType)
}

// Exists answers whether the ledger still holds the object. Only a definite
// "not found" yields false without an error.
func (c *restClient) Exists(ctx context.Context, objectType, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, err := c.Get(ctx, objectType, id)
	if err == nil {
		return true, nil
	}
	var fault *RemoteFault
	if errors.As(err, &fault) && fault.IsNotFound() {
		return false, nil
	}
	return false, err
}

func (c *restClient) CompanyCurrency(ctx context.Context) (*CompanyCurrency, error) {
	if cached := c.currency.get(c.realm); cached != nil {
		return cached, nil
	}

	resp, err := c.MakeRequest(ctx, http.MethodGet, "preferences", nil, nil)
	if err != nil {
		return nil, err
	}

	prefs, _ := resp["Preferences"].(map[string]any)
	currencyPrefs, _ := prefs["CurrencyPrefs"].(map[string]any)
	result := &CompanyCurrency{}
	if enabled, ok := currencyPrefs["MultiCurrencyEnabled"].(bool); ok {
		result.MultiCurrencyEnabled = enabled
	}
	if home, ok := currencyPrefs["HomeCurrency"].(map[string]any); ok {
		result.HomeCurrency, _ = home["value"].(string)
	}

	c.currency.put(c.realm, result)
	return result, nil
}

// ObjectID reads the ledger-assigned Id of a returned object.
func ObjectID(obj map[string]any) string {
	switch v := obj["Id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func unwrapObject(resp map[string]any, objectType string) (map[string]any, error) {
	obj, ok := resp[objectType].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("ledger response missing %s object", objectType)
	}
	return obj, nil
}

func decodeResponse(status int, body []byte) (map[string]any, error) {
	if status == http.StatusOK || status == http.StatusCreated {
		out := map[string]any{}
		if len(bytes.TrimSpace(body)) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode ledger response: %w", err)
		}
		return out, nil
	}

	fault := &RemoteFault{StatusCode: status, Body: string(body)}
	var envelope struct {
		Fault struct {
			Error []FaultError `json:"Error"`
			Type  string       `json:"type"`
		} `json:"Fault"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		fault.Errors = envelope.Fault.Error
		fault.Type = envelope.Fault.Type
	}
	return nil, fault
}

// pacer spaces outgoing calls by a minimum interval. It is not a token bucket.
type pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func (p *pacer) wait(ctx context.Context) error {
	if p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	at := p.next
	if at.Before(now) {
		at = now
	}
	p.next = at.Add(p.interval)
	p.mu.Unlock()

	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type currencyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	realm   string
	value   *CompanyCurrency
	fetched time.Time
}

func (c *currencyCache) get(realm string) *CompanyCurrency {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil || c.realm != realm || time.Since(c.fetched) > c.ttl {
		return nil
	}
	v := *c.value
	return &v
}

func (c *currencyCache) put(realm string, v *CompanyCurrency) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *v
	c.realm = realm
	c.value = &copied
	c.fetched = time.Now()
}

func (c *currencyCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
}
