// Package scheduler runs delayed jobs on asynq: a link expiry notice is
// enqueued for the instant a link stops being claimable.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/congo-pay/timelock/internal/link"
)

// TypeLinkExpiry is the asynq task type of link expiry notices.
const TypeLinkExpiry = "link:expiry"

// DefaultQueue receives every task enqueued by this package.
const DefaultQueue = "timelock"

// LinkExpiryPayload identifies the link a notice is for.
type LinkExpiryPayload struct {
	Sender     string `json:"sender"`
	Commitment string `json:"commitment"`
	At         int64  `json:"at"`
}

// NewLinkExpiryTask builds the notice task for key, due at unix second at.
func NewLinkExpiryTask(key link.Key, at int64) (*asynq.Task, error) {
	payload, err := json.Marshal(LinkExpiryPayload{
		Sender:     key.Sender,
		Commitment: key.Commitment.String(),
		At:         at,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLinkExpiry, payload), nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues link expiry notices.
type Scheduler struct {
	client enqueuer
	queue  string
}

// NewScheduler wraps an asynq client.
func NewScheduler(client *asynq.Client) *Scheduler {
	return &Scheduler{client: client, queue: DefaultQueue}
}

// ScheduleExpiry enqueues the notice for key to be processed at unix second at.
// Scheduling the same key and instant twice is a no-op.
func (s *Scheduler) ScheduleExpiry(ctx context.Context, key link.Key, at int64) error {
	task, err := NewLinkExpiryTask(key, at)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(time.Unix(at, 0)),
		asynq.Queue(s.queue),
		asynq.TaskID(TypeLinkExpiry+":"+key.Sender+":"+key.Commitment.Fingerprint()+":"+strconv.FormatInt(at, 10)),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue link expiry: %w", err)
	}
	return nil
}

// Expirer reacts to a link reaching its expiry.
type Expirer interface {
	NotifyExpired(ctx context.Context, key link.Key) (bool, error)
}

// LinkExpiryProcessor implements asynq.Handler for TypeLinkExpiry.
type LinkExpiryProcessor struct {
	expirer Expirer
	logger  *slog.Logger
}

// NewLinkExpiryProcessor builds the handler for link expiry notices.
func NewLinkExpiryProcessor(expirer Expirer, logger *slog.Logger) *LinkExpiryProcessor {
	return &LinkExpiryProcessor{expirer: expirer, logger: logger}
}

// ProcessTask decodes the payload and hands the link to the expirer.
// Malformed payloads are not retried.
func (p *LinkExpiryProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload LinkExpiryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	commitment, err := link.ParseCommitment(payload.Commitment)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	key := link.Key{Sender: payload.Sender, Commitment: commitment}
	sent, err := p.expirer.NotifyExpired(ctx, key)
	if err != nil {
		return fmt.Errorf("notify link expired: %w", err)
	}
	p.logger.Debug("link expiry processed", slog.Any("key", key), slog.Bool("notified", sent))
	return nil
}
