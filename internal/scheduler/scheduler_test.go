package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/timelock/internal/link"
	"github.com/congo-pay/timelock/internal/logging"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{}, nil
}

type fakeExpirer struct {
	keys []link.Key
	err  error
}

func (f *fakeExpirer) NotifyExpired(_ context.Context, key link.Key) (bool, error) {
	f.keys = append(f.keys, key)
	return f.err == nil, f.err
}

func testKey() link.Key {
	return link.Key{Sender: "alice", Commitment: link.CommitmentFor([]byte("s"))}
}

func TestScheduleExpiryEnqueuesAtInstant(t *testing.T) {
	q := &fakeEnqueuer{}
	s := &Scheduler{client: q, queue: DefaultQueue}
	key := testKey()

	require.NoError(t, s.ScheduleExpiry(context.Background(), key, 1_700_000_061))
	require.Len(t, q.tasks, 1)
	require.Equal(t, TypeLinkExpiry, q.tasks[0].Type())

	var payload LinkExpiryPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	require.Equal(t, "alice", payload.Sender)
	require.Equal(t, key.Commitment.String(), payload.Commitment)

	var at time.Time
	var queue, id string
	for _, opt := range q.opts[0] {
		switch opt.Type() {
		case asynq.ProcessAtOpt:
			at = opt.Value().(time.Time)
		case asynq.QueueOpt:
			queue = opt.Value().(string)
		case asynq.TaskIDOpt:
			id = opt.Value().(string)
		}
	}
	require.Equal(t, int64(1_700_000_061), at.Unix())
	require.Equal(t, DefaultQueue, queue)
	require.Equal(t, TypeLinkExpiry+":alice:"+key.Commitment.Fingerprint()+":1700000061", id)
	require.NotContains(t, id, key.Commitment.String())
}

func TestScheduleExpiryConflictIsNoop(t *testing.T) {
	s := &Scheduler{client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}, queue: DefaultQueue}
	require.NoError(t, s.ScheduleExpiry(context.Background(), testKey(), 1))

	s = &Scheduler{client: &fakeEnqueuer{err: errors.New("dial tcp: refused")}, queue: DefaultQueue}
	require.Error(t, s.ScheduleExpiry(context.Background(), testKey(), 1))
}

func TestMuxRoutesLinkExpiry(t *testing.T) {
	expirer := &fakeExpirer{}
	mux := NewMux(expirer, logging.Discard())
	task, err := NewLinkExpiryTask(testKey(), 10)
	require.NoError(t, err)

	require.NoError(t, mux.ProcessTask(context.Background(), task))
	require.Equal(t, []link.Key{testKey()}, expirer.keys)
}

func TestProcessorErrors(t *testing.T) {
	p := NewLinkExpiryProcessor(&fakeExpirer{}, logging.Discard())

	err := p.ProcessTask(context.Background(), asynq.NewTask(TypeLinkExpiry, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	bad, _ := json.Marshal(LinkExpiryPayload{Sender: "alice", Commitment: "abc"})
	err = p.ProcessTask(context.Background(), asynq.NewTask(TypeLinkExpiry, bad))
	require.ErrorIs(t, err, asynq.SkipRetry)

	failing := NewLinkExpiryProcessor(&fakeExpirer{err: errors.New("db down")}, logging.Discard())
	task, err := NewLinkExpiryTask(testKey(), 10)
	require.NoError(t, err)
	err = failing.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
