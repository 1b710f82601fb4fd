// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"ledger-sync/internal/features/ledger"
)

// Client stores created objects per type and answers Exists/Get from them.
type Client struct {
	mu       sync.Mutex
	objects  map[string]map[string]map[string]any
	nextID   int
	Currency *ledger.CompanyCurrency
	// CurrencyErr, when set, fails the preferences probe.
	CurrencyErr error
	// CreateErr, when set, fails every Create.
	CreateErr error
	Created   []Call
}

type Call struct {
	ObjectType string
	Payload    map[string]any
}

func NewClient() *Client {
	return &Client{
		objects:  map[string]map[string]map[string]any{},
		nextID:   1000,
		Currency: &ledger.CompanyCurrency{HomeCurrency: "RWF"},
	}
}

// Put seeds an existing object.
func (c *Client) Put(objectType, id string, obj map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objects[objectType] == nil {
		c.objects[objectType] = map[string]map[string]any{}
	}
	if obj == nil {
		obj = map[string]any{}
	}
	obj["Id"] = id
	c.objects[objectType][id] = obj
}

func (c *Client) Creates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Created)
}

func (c *Client) RealmID() string { return "test-realm" }

func (c *Client) MakeRequest(ctx context.Context, method, endpoint string, payload any, query url.Values) (map[string]any, error) {
	return nil, fmt.Errorf("ledgertest: raw request %s %s not supported", method, endpoint)
}

func (c *Client) Get(ctx context.Context, objectType, id string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[objectType][id]
	if !ok {
		return nil, &ledger.RemoteFault{
			StatusCode: http.StatusBadRequest,
			Errors:     []ledger.FaultError{{Message: "Object Not Found", Code: "610"}},
		}
	}
	return obj, nil
}

func (c *Client) Create(ctx context.Context, objectType string, payload map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Created = append(c.Created, Call{ObjectType: objectType, Payload: payload})
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	c.nextID++
	id := fmt.Sprint(c.nextID)
	obj := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		obj[k] = v
	}
	obj["Id"] = id
	obj["SyncToken"] = "0"
	if c.objects[objectType] == nil {
		c.objects[objectType] = map[string]map[string]any{}
	}
	c.objects[objectType][id] = obj
	return obj, nil
}

func (c *Client) Update(ctx context.Context, objectType, id string, fields map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[objectType][id]
	if !ok {
		return nil, &ledger.RemoteFault{StatusCode: http.StatusBadRequest, Errors: []ledger.FaultError{{Message: "Object Not Found", Code: "610"}}}
	}
	for k, v := range fields {
		obj[k] = v
	}
	return obj, nil
}

func (c *Client) Exists(ctx context.Context, objectType, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[objectType][id]
	return ok, nil
}

func (c *Client) CompanyCurrency(ctx context.Context) (*ledger.CompanyCurrency, error) {
	if c.CurrencyErr != nil {
		return nil, c.CurrencyErr
	}
	return c.Currency, nil
}

// Factory hands out the same Client, or Err when set.
type Factory struct {
	Client *Client
	Err    error
	Resets int
}

func (f *Factory) New(ctx context.Context) (ledger.Client, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Client, nil
}

func (f *Factory) ResetCache() { f.Resets++ }
