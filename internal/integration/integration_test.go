package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"mcq-chat-service/internal/app"
	"mcq-chat-service/internal/domain"
	"mcq-chat-service/internal/infra/memory"
	"mcq-chat-service/internal/infra/postgres"
	pgmigrations "mcq-chat-service/internal/infra/postgres/migrations"
	infraredis "mcq-chat-service/internal/infra/redis"
)

func TestQuizThreadEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedBank(t, ctx, pgURL, memory.DefaultQuestions())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	loader := infraredis.NewBankCache(redisClient, postgres.NewBankLoader(pool), 5*time.Minute)
	bank, err := memory.NewBankRepository(loader).GetBank(ctx)
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	if bank.Len() != 3 {
		t.Fatalf("expected 3 seeded questions, got %d", bank.Len())
	}

	events := infraredis.NewEventBus(redisClient)
	service := app.NewThreadService(infraredis.NewThreadStore(redisClient, 5*time.Minute), bank, app.WithEvents(events))

	updates, stop, err := service.Watch(ctx, "alice", "t1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	// q1 correct, q2 wrong, q3 correct.
	actions := []domain.Action{
		domain.Submit{QuestionID: "q1", OptionIndex: 0},
		domain.Next{QuestionID: "q1"},
		domain.Submit{QuestionID: "q2", OptionIndex: 0},
		domain.Next{QuestionID: "q2"},
		domain.Submit{QuestionID: "q3", OptionIndex: 2},
		domain.Next{QuestionID: "q3"},
	}
	var last app.ActionResult
	for i, a := range actions {
		last, err = service.HandleAction(ctx, "alice", "t1", a)
		if err != nil {
			t.Fatalf("action %d (%s): %v", i, a.Name(), err)
		}
	}
	if !last.QuizState.Finished() || last.Widget.Summary != "2/3 correct" {
		t.Fatalf("unexpected final result %+v", last.Widget)
	}

	if _, err := service.HandleAction(ctx, "alice", "t1", domain.Next{}); !errors.Is(err, domain.ErrQuizAlreadyFinished) {
		t.Fatalf("expected finished rejection, got %v", err)
	}
	if _, err := service.GetThread(ctx, "bob", "t1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for bob, got %v", err)
	}

	view, err := service.GetThread(ctx, "alice", "t1")
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if len(view.History) != len(actions) {
		t.Fatalf("expected %d entries, got %d", len(actions), len(view.History))
	}

	select {
	case res := <-updates:
		if res.QuizState == nil || res.QuizState.Score != 1 {
			t.Fatalf("unexpected first update %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no update received over redis pub/sub")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "mcq", "POSTGRES_PASSWORD": "mcqpass", "POSTGRES_DB": "mcqdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://mcq:mcqpass@%s:%s/mcqdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedBank(t *testing.T, ctx context.Context, dsn string, questions []domain.Question) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.SeedBank(ctx, db, questions); err != nil {
		t.Fatalf("seed bank: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
