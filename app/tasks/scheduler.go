package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/feed"
)

const (
	taskQueueSize   = 300
	taskTimeout     = 10 * time.Minute
	maxRetryBackoff = 30 * time.Second
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	runner       Runner
	enricher     Enricher
	newsRepo     database.NewsRepository
	sourceCache  *feed.SourceCache
	interval     time.Duration
	workerCount  int
	pendingLimit int
	retryBase    time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

// NewScheduler builds the periodic worker pool. sourceCache may be nil when
// feed sources should not be reloaded from disk.
func NewScheduler(runner Runner, enricher Enricher, newsRepo database.NewsRepository, sourceCache *feed.SourceCache,
	interval time.Duration, workerCount, pendingLimit int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:       runner,
		enricher:     enricher,
		newsRepo:     newsRepo,
		sourceCache:  sourceCache,
		interval:     interval,
		workerCount:  workerCount,
		pendingLimit: pendingLimit,
		retryBase:    time.Second,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, taskQueueSize),
	}
}

func (s *Scheduler) Start() {
	if s.interval <= 0 {
		slog.Info("Scheduler disabled", "interval", s.interval.String())
		return
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

	slog.Info("Scheduler started", "interval", s.interval.String(), "workers", s.workerCount)
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueTasks queues one tick: source reload, the scheduled ingestion run
// and the pending-enrichment sweep.
func (s *Scheduler) enqueueTasks() {
	var tasks []TaskInterface

	if s.sourceCache != nil {
		tasks = append(tasks, NewReloadSourcesTask(s.sourceCache))
	}
	tasks = append(tasks, NewIngestRunTask(s.runner))
	if s.enricher != nil && s.enricher.Enabled() && s.pendingLimit > 0 {
		tasks = append(tasks, NewEnrichPendingTask(s.newsRepo, s.enricher, s.pendingLimit))
	}

	for _, task := range tasks {
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue task", "type", string(task.GetType()), "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

// retryDelay doubles per retry, capped at maxRetryBackoff.
func (s *Scheduler) retryDelay(retryCount int) time.Duration {
	delay := s.retryBase
	for i := 1; i < retryCount && delay < maxRetryBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxRetryBackoff)
}
