package infra

import (
	"testing"

	"github.com/hibiken/asynq"
)

func TestPostgresConfigTagsApplication(t *testing.T) {
	cfg, err := postgresConfig("postgres://timelock:pw@localhost:5432/timelock?sslmode=disable", "Timelock")
	if err != nil {
		t.Fatalf("postgresConfig: %v", err)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "Timelock" {
		t.Fatalf("expected application_name Timelock got %q", got)
	}
	if cfg.ConnConfig.Database != "timelock" {
		t.Fatalf("expected database timelock got %q", cfg.ConnConfig.Database)
	}

	if _, err := postgresConfig("", "Timelock"); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := postgresConfig("://nope", "Timelock"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestNewTaskQueueParsesRedisURL(t *testing.T) {
	client, opt, err := NewTaskQueue("redis://:secret@localhost:6380/3")
	if err != nil {
		t.Fatalf("NewTaskQueue: %v", err)
	}
	defer client.Close()
	clientOpt, ok := opt.(asynq.RedisClientOpt)
	if !ok {
		t.Fatalf("expected RedisClientOpt got %T", opt)
	}
	if clientOpt.Addr != "localhost:6380" || clientOpt.DB != 3 || clientOpt.Password != "secret" {
		t.Fatalf("unexpected options: %+v", clientOpt)
	}

	if _, _, err := NewTaskQueue(""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, _, err := NewTaskQueue("http://localhost"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
