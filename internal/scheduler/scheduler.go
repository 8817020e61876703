// Package scheduler dispatches the stored task table. Every minute the
// dispatcher matches each active task against the current date and clock
// and runs the matching ones, isolating failures per task and appending a
// run log row for each execution.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/calendar"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/notifier"
)

// TaskFunc executes one task run and returns a human-readable message.
type TaskFunc func(ctx context.Context, now time.Time) (string, error)

type Scheduler struct {
	db  *gorm.DB
	log *zap.Logger
	ops *notifier.OpsNotifier

	mu    sync.Mutex
	tasks map[string]TaskFunc
	// fallback locks for databases without advisory locks
	local map[string]*sync.Mutex
}

func New(db *gorm.DB, log *zap.Logger, ops *notifier.OpsNotifier) *Scheduler {
	return &Scheduler{
		db:    db,
		log:   log,
		ops:   ops,
		tasks: make(map[string]TaskFunc),
		local: make(map[string]*sync.Mutex),
	}
}

// Register binds a task name from the dispatch table to its function.
func (s *Scheduler) Register(name string, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = fn
	s.local[name] = &sync.Mutex{}
}

// Run ticks the dispatcher every minute until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.log.Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick evaluates every active task against now and runs the matches.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	var tasks []models.ScheduledTask
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&tasks).Error; err != nil {
		s.log.Error("failed to load scheduled tasks", zap.Error(err))
		return
	}

	for i := range tasks {
		task := &tasks[i]
		if !ShouldRun(task, now) {
			continue
		}
		s.runTask(ctx, task, now)
	}
}

// ShouldRun implements the dispatch predicate: the task is active, today
// matches its date or a weekday flag, and the clock matches its time or
// falls on a frequency multiple past it.
func ShouldRun(task *models.ScheduledTask, now time.Time) bool {
	if !task.Active {
		return false
	}

	today := calendar.Day(now)
	dayMatch := false
	if task.Date != nil && calendar.Day(*task.Date).Equal(today) {
		dayMatch = true
	}
	if task.WeekdayEnabled(now.Weekday()) {
		dayMatch = true
	}
	if !dayMatch {
		return false
	}

	taskClock, err := time.Parse("15:04", task.Time)
	if err != nil {
		return false
	}
	taskMinutes := taskClock.Hour()*60 + taskClock.Minute()
	nowMinutes := now.Hour()*60 + now.Minute()

	if nowMinutes == taskMinutes {
		return true
	}
	if task.Frequency != nil && *task.Frequency > 0 && nowMinutes > taskMinutes {
		return (nowMinutes-taskMinutes)%(*task.Frequency*60) == 0
	}
	return false
}

// runTask executes one task under its per-task lock and records the run.
func (s *Scheduler) runTask(ctx context.Context, task *models.ScheduledTask, now time.Time) {
	s.mu.Lock()
	fn, ok := s.tasks[task.Name]
	local := s.local[task.Name]
	s.mu.Unlock()

	if !ok {
		s.log.Warn("scheduled task has no registered function", zap.String("task", task.Name))
		return
	}

	unlock, acquired := s.acquire(ctx, task, local)
	if !acquired {
		s.log.Info("task already running elsewhere, skipping", zap.String("task", task.Name))
		return
	}
	defer unlock()

	started := time.Now()
	msg, err := s.execute(ctx, fn, now)
	runtime := time.Since(started)

	entry := models.TaskRunLog{
		TaskName: task.Name,
		Success:  err == nil,
		Message:  msg,
		Runtime:  runtime,
		RanAt:    now,
	}
	if err != nil {
		entry.Message = err.Error()
		s.log.Error("scheduled task failed",
			zap.String("task", task.Name), zap.Duration("runtime", runtime), zap.Error(err))
		s.ops.TaskFailed(task.Name, err)
	} else {
		s.log.Info("scheduled task completed",
			zap.String("task", task.Name), zap.Duration("runtime", runtime), zap.String("message", msg))
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Error("failed to record task run", zap.String("task", task.Name), zap.Error(err))
	}
}

// execute isolates panics so one broken task cannot take the dispatcher
// down.
func (s *Scheduler) execute(ctx context.Context, fn TaskFunc, now time.Time) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, now)
}

// acquire enforces at-most-one concurrent execution per task: a postgres
// advisory lock keyed on the task row id, or an in-process mutex on
// databases without advisory locks. Advisory locks are bound to the
// session that took them, so the postgres path pins a single connection
// out of the pool and holds it until release.
func (s *Scheduler) acquire(ctx context.Context, task *models.ScheduledTask, local *sync.Mutex) (func(), bool) {
	if s.db.Dialector.Name() == "postgres" {
		sqlDB, err := s.db.DB()
		if err != nil {
			s.log.Error("advisory lock failed", zap.String("task", task.Name), zap.Error(err))
			return nil, false
		}
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			s.log.Error("advisory lock failed", zap.String("task", task.Name), zap.Error(err))
			return nil, false
		}
		var got bool
		if err := conn.QueryRowContext(ctx,
			"SELECT pg_try_advisory_lock($1)", int64(task.ID)).Scan(&got); err != nil {
			conn.Close()
			s.log.Error("advisory lock failed", zap.String("task", task.Name), zap.Error(err))
			return nil, false
		}
		if !got {
			conn.Close()
			return nil, false
		}
		return func() {
			// Unlock must run on the same session that locked.
			if _, err := conn.ExecContext(context.Background(),
				"SELECT pg_advisory_unlock($1)", int64(task.ID)); err != nil {
				s.log.Error("advisory unlock failed", zap.String("task", task.Name), zap.Error(err))
			}
			conn.Close()
		}, true
	}

	if !local.TryLock() {
		return nil, false
	}
	return local.Unlock, true
}
