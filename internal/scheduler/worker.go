package scheduler

import (
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker runs the asynq server processing this package's tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker builds a worker on redis with the given concurrency.
func NewWorker(redis asynq.RedisConnOpt, concurrency int, expirer Expirer, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{DefaultQueue: 1},
	})
	return &Worker{server: srv, mux: NewMux(expirer, logger), logger: logger}
}

// NewMux registers every task handler of this package.
func NewMux(expirer Expirer, logger *slog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeLinkExpiry, NewLinkExpiryProcessor(expirer, logger))
	return mux
}

// Start begins processing in the background.
func (w *Worker) Start() error {
	w.logger.Info("starting task worker", slog.String("queue", DefaultQueue))
	return w.server.Start(w.mux)
}

// Shutdown waits for in-flight tasks and stops the worker.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
