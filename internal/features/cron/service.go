package cron_feature

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/features/batch"
	sync_feature "ledger-sync/internal/features/sync"
	"ledger-sync/pkg/utils"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const schedulerActor = "scheduler"

var ErrNoSchedule = errors.New("no schedule configured")

type SchedulerService interface {
	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
	Schedules() []Schedule
	RunNow(ctx context.Context, kind string) (*RunLog, error)
	GetRunLogs(ctx context.Context, kind string, limit int) ([]RunLog, error)
}

type SchedulerServiceImpl struct {
	repo         RunRepository
	orchestrator batch.Orchestrator
	syncService  sync_feature.SyncService
	expressions  map[string]string
	log          *zap.Logger

	scheduler  *cron.Cron
	jobEntries map[string]cron.EntryID
	lastRuns   map[string]time.Time
	mu         sync.RWMutex
}

func NewSchedulerService(
	cfg *config.Config,
	repo RunRepository,
	orchestrator batch.Orchestrator,
	syncService sync_feature.SyncService,
	log *zap.Logger,
) SchedulerService {
	return &SchedulerServiceImpl{
		repo:         repo,
		orchestrator: orchestrator,
		syncService:  syncService,
		expressions:  cfg.SyncSchedules,
		log:          log.Named("scheduler"),
		jobEntries:   make(map[string]cron.EntryID),
		lastRuns:     make(map[string]time.Time),
	}
}

// InitializeScheduler registers one cursor-mode dispatch per kind with a
// non-empty expression. A bad expression fails startup.
func (s *SchedulerServiceImpl) InitializeScheduler(ctx context.Context) error {
	s.log.Info("Initializing sync scheduler")
	s.scheduler = cron.New(cron.WithChain(cron.Recover(cronLogger{s.log.Sugar()})))

	for _, kind := range s.syncService.Kinds() {
		expr := s.expressions[kind]
		if expr == "" {
			continue
		}
		if err := s.registerJob(kind, expr); err != nil {
			return fmt.Errorf("schedule %s: %w", kind, err)
		}
		s.log.Info("Scheduled sync registered", zap.String("kind", kind), zap.String("expression", expr))
	}
	for kind, expr := range s.expressions {
		if expr == "" {
			continue
		}
		if _, err := s.syncService.Kind(kind); err != nil {
			s.log.Warn("Schedule configured for unknown kind", zap.String("kind", kind))
		}
	}

	s.scheduler.Start()
	return nil
}

func (s *SchedulerServiceImpl) StopScheduler() error {
	if s.scheduler != nil {
		ctx := s.scheduler.Stop()
		<-ctx.Done()
	}
	return nil
}

func (s *SchedulerServiceImpl) registerJob(kind, expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return fmt.Errorf("scheduler not initialized")
	}

	entryID, err := s.scheduler.AddFunc(expr, func() {
		if _, err := s.execute(context.Background(), kind, TriggerSchedule); err != nil {
			s.log.Error("Scheduled sync failed", zap.String("kind", kind), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s.jobEntries[kind] = entryID
	return nil
}

func (s *SchedulerServiceImpl) Schedules() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := make([]Schedule, 0, len(s.expressions))
	for kind, expr := range s.expressions {
		sched := Schedule{Kind: kind, Expression: expr}
		if entryID, ok := s.jobEntries[kind]; ok && s.scheduler != nil {
			sched.Active = true
			if next := s.scheduler.Entry(entryID).Next; !next.IsZero() {
				sched.NextRun = &next
			}
		}
		if last, ok := s.lastRuns[kind]; ok {
			sched.LastRun = &last
		}
		schedules = append(schedules, sched)
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].Kind < schedules[j].Kind })
	return schedules
}

// RunNow triggers the same dispatch a schedule tick would.
func (s *SchedulerServiceImpl) RunNow(ctx context.Context, kind string) (*RunLog, error) {
	if _, err := s.syncService.Kind(kind); err != nil {
		return nil, err
	}
	return s.execute(ctx, kind, TriggerManual)
}

func (s *SchedulerServiceImpl) execute(ctx context.Context, kind, trigger string) (*RunLog, error) {
	actor := utils.ActorFromContext(ctx)
	if trigger == TriggerSchedule {
		actor = schedulerActor
		ctx = utils.WithActor(ctx, actor)
	}

	startTime := time.Now().UTC()
	s.mu.Lock()
	s.lastRuns[kind] = startTime
	s.mu.Unlock()

	runLog := &RunLog{
		Kind:      kind,
		Trigger:   trigger,
		Actor:     actor,
		StartTime: startTime,
		Status:    RunDispatched,
	}
	if err := s.repo.CreateLog(ctx, runLog); err != nil {
		s.log.Warn("Failed to create run log", zap.String("kind", kind), zap.Error(err))
	}

	resp, execErr := s.orchestrator.Dispatch(ctx, batch.DispatchRequest{Kind: kind})

	endTime := time.Now().UTC()
	runLog.EndTime = &endTime
	switch {
	case execErr != nil:
		runLog.Status = RunFailed
		runLog.Error = execErr.Error()
	case resp.JobID == "":
		runLog.Status = RunCompleted
		runLog.Offset = resp.Offset
	default:
		runLog.JobID = resp.JobID
		runLog.Total = resp.Total
		runLog.Offset = resp.Offset
	}

	if err := s.repo.UpdateLog(ctx, runLog); err != nil {
		s.log.Warn("Failed to update run log", zap.String("kind", kind), zap.Error(err))
	}

	s.log.Info("Sync run triggered",
		zap.String("kind", kind),
		zap.String("trigger", trigger),
		zap.String("status", runLog.Status),
		zap.String("job_id", runLog.JobID),
		zap.Int("total", runLog.Total))
	return runLog, execErr
}

func (s *SchedulerServiceImpl) GetRunLogs(ctx context.Context, kind string, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.GetLogs(ctx, kind, limit)
}

// cronLogger routes robfig/cron's own messages into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
