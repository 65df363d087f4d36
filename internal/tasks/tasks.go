// Package tasks runs dispatch runs on an asynq worker.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
)

const TypeNotificationRun = "notification:run"

// A run can outlast the asynq default of 30 minutes when retries back off.
const runTimeout = 2 * time.Hour

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}
}

// NewClient creates an asynq client on the same Redis as rdb.
func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// NewRunTask wraps a planned request. Runs are never retried by the queue
// because a retry would send every message again.
func NewRunTask(req dispatch.Request) (*asynq.Task, error) {
	if req.RunID == "" {
		return nil, errors.New("run request has no id")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run %s: %w", req.RunID, err)
	}
	return asynq.NewTask(TypeNotificationRun, payload,
		asynq.MaxRetry(0),
		asynq.Queue("critical"),
		asynq.TaskID(req.RunID),
		asynq.Timeout(runTimeout),
	), nil
}

// Enqueuer puts runs on the queue.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// Enqueue queues req, which must already carry its run id.
func (e *Enqueuer) Enqueue(ctx context.Context, req dispatch.Request) error {
	task, err := NewRunTask(req)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue run %s: %w", req.RunID, err)
	}
	log.WithField("run", req.RunID).Infof("Run queued as task %s on %s", info.ID, info.Queue)
	return nil
}

// Planner is the part of dispatch.Pipeline the worker needs.
type Planner interface {
	Plan(ctx context.Context, req dispatch.Request) (*dispatch.Run, error)
}

// TaskProcessor handles queued tasks.
type TaskProcessor struct {
	pipeline Planner
}

func NewTaskProcessor(pipeline Planner) *TaskProcessor {
	return &TaskProcessor{pipeline: pipeline}
}

// HandleNotificationRunTask plans and executes a queued run. Nothing it
// returns is retried.
func (p *TaskProcessor) HandleNotificationRunTask(ctx context.Context, t *asynq.Task) error {
	var req dispatch.Request
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal run payload: %v: %w", err, asynq.SkipRetry)
	}

	run, err := p.pipeline.Plan(ctx, req)
	if err != nil {
		return fmt.Errorf("run %s rejected: %v: %w", req.RunID, err, asynq.SkipRetry)
	}

	summary := run.Execute(ctx)
	log.WithField("run", run.ID).Infof("Queued run finished: %d attempted, %d emails, %d WhatsApp",
		summary.Attempts, summary.EmailOK, summary.WhatsAppOK)
	return nil
}

// NewServer creates the worker. concurrency bounds how many runs execute at once.
func NewServer(rdb *redis.Client, concurrency int) *asynq.Server {
	return asynq.NewServer(redisOpt(rdb), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.WithField("type", task.Type()).Errorf("Task failed: %v", err)
		}),
		Logger: log.StandardLogger(),
	})
}

// NewServeMux registers the task handlers.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotificationRun, p.HandleNotificationRunTask)
	return mux
}
