package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mcq-chat-service/internal/app"
	"mcq-chat-service/internal/auth"
	"mcq-chat-service/internal/config"
	"mcq-chat-service/internal/domain"
	"mcq-chat-service/internal/infra/memory"
	"mcq-chat-service/internal/infra/postgres"
	infraredis "mcq-chat-service/internal/infra/redis"
	transport "mcq-chat-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		return errors.New("auth secret not configured (set auth.secret or AUTH_SECRET)")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return errors.Wrap(err, "connect postgres")
		}
		defer pool.Close()
	}

	bank, err := loadBank(ctx, cfg, pool, redisClient)
	if err != nil {
		return err
	}
	glog.Infof("question bank loaded: %d questions", bank.Len())

	idleTTL := config.Duration(cfg.Thread.IdleTTL, 2*time.Hour)
	var (
		threads  app.ThreadRepository
		events   app.EventBus
		memStore *memory.ThreadStore
	)
	if redisClient != nil {
		threads = infraredis.NewThreadStore(redisClient, config.Duration(cfg.Redis.TTL, idleTTL)).LimitHistory(cfg.Thread.HistoryLimit)
		events = infraredis.NewEventBus(redisClient)
	} else {
		memStore = memory.NewThreadStore().LimitHistory(cfg.Thread.HistoryLimit)
		threads = memStore
		events = memory.NewEventHub()
	}

	service := app.NewThreadService(threads, bank,
		app.WithLockTimeout(config.Duration(cfg.Thread.LockTimeout, app.DefaultLockTimeout)),
		app.WithEvents(events),
	)
	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewHandler(service).Routes(verifier, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		glog.Infof("starting mcq chat service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	if memStore != nil && idleTTL > 0 {
		g.Go(func() error {
			evictIdleThreads(gctx, service, memStore, idleTTL)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		glog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	glog.Flush()
	return err
}

// loadBank picks the question source: Postgres (cached in Redis when
// available), then a YAML file, then the built-in bank.
func loadBank(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, client *redis.Client) (domain.QuestionBank, error) {
	var loader memory.BankLoader
	switch {
	case pool != nil:
		loader = postgres.NewBankLoader(pool)
		if client != nil {
			loader = infraredis.NewBankCache(client, loader, config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute))
		}
	case cfg.Quiz.BankFile != "":
		loader = memory.NewFileBankLoader(cfg.Quiz.BankFile)
	default:
		loader = memory.NewStaticBankLoader(memory.DefaultQuestions())
	}
	return memory.NewBankRepository(loader).GetBank(ctx)
}

func evictIdleThreads(ctx context.Context, service *app.ThreadService, store *memory.ThreadStore, idleTTL time.Duration) {
	ticker := time.NewTicker(idleTTL / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := service.EvictIdle(store, now.Add(-idleTTL)); n > 0 {
				glog.V(1).Infof("evicted %d idle threads", n)
			}
		}
	}
}
