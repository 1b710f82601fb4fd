package audit

import (
	"context"
	"time"

	"ledger-sync/pkg/condition"
	"ledger-sync/pkg/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type AuditService interface {
	Record(ctx context.Context, entry Entry)
	ListLogs(ctx context.Context, filters map[string]interface{}, page, limit int64) (*Page, error)
	Search(ctx context.Context, group *condition.Group, page, limit int64) (*Page, error)
}

type Page struct {
	Items []Entry `json:"items"`
	Total int64   `json:"total"`
	Page  int64   `json:"page"`
	Limit int64   `json:"limit"`
}

type AuditServiceImpl struct {
	Repo AuditRepository
	log  *zap.Logger
}

func NewAuditService(repo AuditRepository, log *zap.Logger) AuditService {
	return &AuditServiceImpl{
		Repo: repo,
		log:  log.Named("audit"),
	}
}

// Record appends an entry. A failed write is logged and never fails the sync.
func (s *AuditServiceImpl) Record(ctx context.Context, entry Entry) {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.Actor == "" {
		entry.Actor = utils.ActorFromContext(ctx)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Repo.Create(writeCtx, entry); err != nil {
		s.log.Error("Failed to write audit entry",
			zap.String("action_type", entry.ActionType),
			zap.String("kind", entry.Kind),
			zap.String("record_id", entry.RecordID),
			zap.Error(err))
	}
}

func (s *AuditServiceImpl) ListLogs(ctx context.Context, filters map[string]interface{}, page, limit int64) (*Page, error) {
	query := bson.M{}
	for k, v := range filters {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok && str == "" {
			continue
		}
		query[k] = v
	}
	return s.page(ctx, query, page, limit)
}

func (s *AuditServiceImpl) Search(ctx context.Context, group *condition.Group, page, limit int64) (*Page, error) {
	compiler := condition.NewCompiler(FilterableFields, map[string]interface{}{
		"actor": utils.ActorFromContext(ctx),
	})
	query, err := compiler.Compile(group)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, query, page, limit)
}

func (s *AuditServiceImpl) page(ctx context.Context, query bson.M, page, limit int64) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}
	offset := (page - 1) * limit

	items, err := s.Repo.List(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.Repo.Count(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}
