package sync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	gosync "sync"
	"sync/atomic"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/features/audit"
	"ledger-sync/internal/features/ledger"
	"ledger-sync/pkg/condition"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

type fakeKind struct {
	mu      gosync.Mutex
	records map[string]*Record

	mapErr         error
	mapPanic       bool
	markSyncedErrs int
	claims         atomic.Int32
	markSyncedCtx  error
}

func newFakeKind(recs ...SyncableRecord) *fakeKind {
	k := &fakeKind{records: map[string]*Record{}}
	for _, r := range recs {
		k.records[r.ID] = &Record{SyncableRecord: r}
	}
	return k
}

func (k *fakeKind) Name() string       { return "bank" }
func (k *fakeKind) ObjectType() string { return "Account" }

func (k *fakeKind) Fetch(ctx context.Context, id string) (*Record, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	r, ok := k.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (k *fakeKind) get(id string) SyncableRecord {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.records[id].SyncableRecord
}

func (k *fakeKind) Claim(ctx context.Context, rec *Record, actor string, now time.Time, force bool) (bool, error) {
	k.claims.Add(1)
	k.mu.Lock()
	defer k.mu.Unlock()
	stored := k.records[rec.ID]
	if !force && (stored.Status != rec.Status || !sameTime(stored.LastPushedAt, rec.LastPushedAt)) {
		return false, nil
	}
	stored.Status = StatusInProgress
	stored.LastPushedAt = &now
	stored.LastPushedBy = actor
	return true, nil
}

func (k *fakeKind) MarkSynced(ctx context.Context, id, externalID, actor string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		k.markSyncedCtx = err
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.markSyncedErrs > 0 {
		k.markSyncedErrs--
		return errors.New("deadlock found when trying to get lock")
	}
	r := k.records[id]
	r.Status = StatusSynced
	r.ExternalID = externalID
	r.LastPushedAt = &now
	r.LastPushedBy = actor
	return nil
}

func (k *fakeKind) MarkFailed(ctx context.Context, id, actor string, now time.Time) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	r := k.records[id]
	r.Status = StatusFailed
	r.LastPushedAt = &now
	r.LastPushedBy = actor
	return nil
}

func (k *fakeKind) MapPayload(ctx context.Context, client ledger.Client, rec *Record) (map[string]any, error) {
	if k.mapPanic {
		var m map[string]any
		m["boom"] = 1
	}
	if k.mapErr != nil {
		return nil, k.mapErr
	}
	return map[string]any{"Name": "Bank " + rec.ID, "AccountType": "Bank"}, nil
}

func (k *fakeKind) ListUnsynced(ctx context.Context, limit, offset int) ([]SyncableRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []SyncableRecord
	for i := 1; i <= len(k.records); i++ {
		r, ok := k.records[fmt.Sprint(i)]
		if ok && r.Status == StatusNotSynced {
			out = append(out, r.SyncableRecord)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (k *fakeKind) CountByStatus(ctx context.Context) (StatusCounts, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var c StatusCounts
	for _, r := range k.records {
		c.Total++
		switch r.Status {
		case StatusSynced:
			c.Synced++
			if r.ExternalID == "" {
				c.Inconsistent++
			}
		case StatusFailed:
			c.Failed++
		case StatusInProgress:
			c.InProgress++
		default:
			c.NotSynced++
		}
	}
	return c, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

type fakeClient struct {
	mu        gosync.Mutex
	created   map[string]bool
	nextID    atomic.Int32
	creates   atomic.Int32
	updates   atomic.Int32
	lastUpdID string

	createErr   error
	existsErr   error
	createDelay time.Duration
	onCreate    func()
}

func newFakeClient() *fakeClient {
	c := &fakeClient{created: map[string]bool{}}
	c.nextID.Store(100)
	return c
}

func (c *fakeClient) RealmID() string { return "9130" }

func (c *fakeClient) MakeRequest(ctx context.Context, method, endpoint string, payload any, query url.Values) (map[string]any, error) {
	return nil, errors.New("not used")
}

func (c *fakeClient) Get(ctx context.Context, objectType, id string) (map[string]any, error) {
	return map[string]any{"Id": id}, nil
}

func (c *fakeClient) Create(ctx context.Context, objectType string, payload map[string]any) (map[string]any, error) {
	c.creates.Add(1)
	if c.onCreate != nil {
		c.onCreate()
	}
	if c.createDelay > 0 {
		time.Sleep(c.createDelay)
	}
	if c.createErr != nil {
		return nil, c.createErr
	}
	id := fmt.Sprint(c.nextID.Add(1))
	c.mu.Lock()
	c.created[id] = true
	c.mu.Unlock()
	return map[string]any{"Id": id, "SyncToken": "0"}, nil
}

func (c *fakeClient) Update(ctx context.Context, objectType, id string, fields map[string]any) (map[string]any, error) {
	c.updates.Add(1)
	c.mu.Lock()
	c.lastUpdID = id
	c.mu.Unlock()
	return map[string]any{"Id": id, "SyncToken": "1"}, nil
}

func (c *fakeClient) Exists(ctx context.Context, objectType, id string) (bool, error) {
	if c.existsErr != nil {
		return false, c.existsErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created[id], nil
}

func (c *fakeClient) CompanyCurrency(ctx context.Context) (*ledger.CompanyCurrency, error) {
	return &ledger.CompanyCurrency{HomeCurrency: "RWF"}, nil
}

type fakeFactory struct {
	client ledger.Client
	err    error
}

func (f *fakeFactory) New(ctx context.Context) (ledger.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func (f *fakeFactory) ResetCache() {}

type fakeAudit struct {
	mu      gosync.Mutex
	entries []audit.Entry
}

func (a *fakeAudit) Record(ctx context.Context, entry audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *fakeAudit) ListLogs(ctx context.Context, filters map[string]interface{}, page, limit int64) (*audit.Page, error) {
	return &audit.Page{}, nil
}

func (a *fakeAudit) Search(ctx context.Context, group *condition.Group, page, limit int64) (*audit.Page, error) {
	return &audit.Page{}, nil
}

func (a *fakeAudit) last() audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[len(a.entries)-1]
}

func testExecutor(factory ledger.ClientFactory, auditLog *fakeAudit) *ExecutorImpl {
	e := newExecutor(&config.Config{StalenessWindow: DefaultStalenessWindow}, factory, auditLog, zap.NewNop())
	e.persistBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return e
}
