package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TokenVault persists the OAuth session encrypted and hands it out decrypted.
type TokenVault interface {
	Load(ctx context.Context) (*OAuthSession, error)
	Save(ctx context.Context, session *OAuthSession) error
	Clear(ctx context.Context) error
	Encrypted() bool
}

type TokenVaultImpl struct {
	repo   ConnectionRepository
	cipher *TokenCipher
	log    *zap.Logger
}

func NewTokenVault(repo ConnectionRepository, cipher *TokenCipher, log *zap.Logger) TokenVault {
	return &TokenVaultImpl{
		repo:   repo,
		cipher: cipher,
		log:    log.Named("token_vault"),
	}
}

// Load returns ErrNotConnected when nothing usable is stored.
func (v *TokenVaultImpl) Load(ctx context.Context) (*OAuthSession, error) {
	conn, err := v.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger connection: %w", err)
	}
	if conn == nil || conn.RefreshToken == "" || conn.RealmID == "" {
		return nil, ErrNotConnected
	}

	access, err := v.cipher.Decrypt(conn.AccessToken)
	if err != nil {
		v.log.Error("Failed to decrypt access token", zap.Error(err))
		return nil, ErrNotConnected
	}
	refresh, err := v.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		v.log.Error("Failed to decrypt refresh token", zap.Error(err))
		return nil, ErrNotConnected
	}

	return &OAuthSession{
		AccessToken:  access,
		RefreshToken: refresh,
		RealmID:      conn.RealmID,
		TokenExpiry:  conn.TokenExpiry,
		ConnectedAt:  conn.ConnectedAt,
	}, nil
}

func (v *TokenVaultImpl) Save(ctx context.Context, session *OAuthSession) error {
	access, err := v.cipher.Encrypt(session.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := v.cipher.Encrypt(session.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	connectedAt := session.ConnectedAt
	if connectedAt.IsZero() {
		connectedAt = time.Now()
	}

	return v.repo.Upsert(ctx, &Connection{
		AccessToken:  access,
		RefreshToken: refresh,
		RealmID:      session.RealmID,
		TokenExpiry:  session.TokenExpiry,
		ConnectedAt:  connectedAt,
	})
}

func (v *TokenVaultImpl) Clear(ctx context.Context) error {
	return v.repo.Delete(ctx)
}

func (v *TokenVaultImpl) Encrypted() bool {
	return v.cipher.Enabled()
}
