package ledger

import "time"

const connectionID = "default"

// Connection is the stored OAuth connection. Token fields hold ciphertext.
type Connection struct {
	ID           string    `bson:"_id" json:"-"`
	AccessToken  string    `bson:"access_token" json:"-"`
	RefreshToken string    `bson:"refresh_token" json:"-"`
	RealmID      string    `bson:"realm_id" json:"realm_id"`
	TokenExpiry  time.Time `bson:"token_expiry" json:"token_expiry"`
	ConnectedAt  time.Time `bson:"connected_at" json:"connected_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// OAuthSession is the decrypted, in-memory form of a Connection.
type OAuthSession struct {
	AccessToken  string
	RefreshToken string
	RealmID      string
	TokenExpiry  time.Time
	ConnectedAt  time.Time
}

// CompanyCurrency is what the preferences probe reports about the ledger company.
type CompanyCurrency struct {
	MultiCurrencyEnabled bool   `json:"multi_currency_enabled"`
	HomeCurrency         string `json:"home_currency"`
}

type ConnectionStatus struct {
	Connected   bool       `json:"connected"`
	RealmID     string     `json:"realm_id,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	TokenExpiry *time.Time `json:"token_expiry,omitempty"`
	Encrypted   bool       `json:"tokens_encrypted"`
}
