// Command cassauth runs the credential/session service and its operational
// commands.
//
// Usage:
//
//	cassauth serve             run the HTTP service
//	cassauth create-keyspace   create the configured keyspace (idempotent)
//	cassauth sync-tables       create the credential and session tables
//	cassauth test-connection   verify cluster and keyspace access
//	cassauth create-user       interactively create a credential record
//	cassauth clear-expired     run one expired-session sweep
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/cassauth/cassauth/internal/api"
	"github.com/cassauth/cassauth/internal/core/domain"
	"github.com/cassauth/cassauth/internal/core/service"
	"github.com/cassauth/cassauth/internal/infrastructure/config"
	"github.com/cassauth/cassauth/internal/infrastructure/db/cassandra"
	redisdb "github.com/cassauth/cassauth/internal/infrastructure/db/redis"
	"github.com/cassauth/cassauth/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	switch os.Args[1] {
	case "serve":
		err = serve(ctx, cfg, log)
	case "create-keyspace":
		err = createKeyspace(ctx, cfg, log)
	case "sync-tables":
		err = syncTables(ctx, cfg, log)
	case "test-connection":
		err = testConnection(ctx, cfg, log)
	case "create-user":
		err = createUser(ctx, cfg, log, os.Args[2:])
	case "clear-expired":
		err = clearExpired(ctx, cfg, log, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cassauth <serve|create-keyspace|sync-tables|test-connection|create-user|clear-expired> [flags]")
}

// connect opens a session bound to the configured keyspace.
func connect(ctx context.Context, cfg *config.Config) (*gocql.Session, error) {
	return cassandra.Connect(ctx, cassandra.Config{
		Hosts:       cfg.Cassandra.Hosts,
		Keyspace:    cfg.Cassandra.Keyspace,
		Consistency: cfg.Cassandra.Consistency,
		Timeout:     cfg.Cassandra.Timeout,
	})
}

// connectBare opens a session bound to no keyspace, for DDL that must run
// before the keyspace exists.
func connectBare(ctx context.Context, cfg *config.Config) (*gocql.Session, error) {
	return cassandra.Connect(ctx, cassandra.Config{
		Hosts:       cfg.Cassandra.Hosts,
		Consistency: cfg.Cassandra.Consistency,
		Timeout:     cfg.Cassandra.Timeout,
	})
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	session, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	var rdb *redis.Client
	if cfg.Redis.CacheSessions {
		rdb, err = redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sweep.Interval > 0 {
		sweeper := cassandra.NewSweeper(session, cfg.Sweep.PageSize, cfg.Sweep.PagesPerSec, log)
		go sweeper.Run(runCtx, cfg.Sweep.Interval)
		log.Info().Dur("interval", cfg.Sweep.Interval).Msg("background session sweep enabled")
	}

	e := api.NewRouter(session, rdb, cfg, log)

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("starting server")
	if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func createKeyspace(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	session, err := connectBare(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	serverTime, err := cassandra.HealthCheck(ctx, session)
	if err != nil {
		return err
	}
	log.Info().Time("server_time", serverTime).Msg("connection to cassandra OK")

	if err := cassandra.EnsureKeyspace(ctx, session, cfg.Cassandra.Keyspace, cassandra.ReplicationSpec{
		Class:  cfg.Cassandra.ReplicationClass,
		Factor: cfg.Cassandra.ReplicationFactor,
	}); err != nil {
		return err
	}
	log.Info().Str("keyspace", cfg.Cassandra.Keyspace).Msg("keyspace created")

	// Re-connect bound to the keyspace to confirm it is usable.
	bound, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	bound.Close()
	log.Info().Str("keyspace", cfg.Cassandra.Keyspace).Msg("keyspace OK")
	return nil
}

func syncTables(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if err := createKeyspace(ctx, cfg, log); err != nil {
		return err
	}

	session, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := cassandra.CreateTables(ctx, session); err != nil {
		return err
	}
	log.Info().Msg("tables synced")
	return nil
}

func testConnection(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	session, err := connectBare(ctx, cfg)
	if err != nil {
		return err
	}
	serverTime, err := cassandra.HealthCheck(ctx, session)
	session.Close()
	if err != nil {
		return err
	}
	log.Info().Time("server_time", serverTime).Msg("connection to cassandra OK")

	bound, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	bound.Close()
	log.Info().Str("keyspace", cfg.Cassandra.Keyspace).Msg("keyspace OK")
	return nil
}

func createUser(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	superuser := fs.Bool("superuser", false, "grant staff and superuser flags")
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter the username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	username = strings.TrimSpace(username)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Print("Password (again): ")
	password2, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	if string(password) != string(password2) {
		return errors.New("password mismatch")
	}

	userRepo := cassandra.NewUserRepository(session)
	sessionRepo := cassandra.NewSessionRepository(session)
	sessions := service.NewSessionService(sessionRepo, nil, cfg.Session.TTL, log)
	auth := service.NewAuthService(userRepo, sessions, cfg.JWTSecret, cfg.Session.TokenTTL, cfg.Session.TTL, log)

	_, err = auth.Register(ctx, username, string(password), domain.Profile{
		Email:     *email,
		Staff:     *superuser,
		Superuser: *superuser,
	})
	if err != nil {
		return err
	}
	log.Info().Str("username", username).Msg("user created")
	return nil
}

func clearExpired(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("clear-expired", flag.ExitOnError)
	pageSize := fs.Int("page-size", cfg.Sweep.PageSize, "rows fetched per scan page")
	pagesPerSec := fs.Float64("pages-per-sec", cfg.Sweep.PagesPerSec, "scan pages processed per second")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	sweeper := cassandra.NewSweeper(session, *pageSize, *pagesPerSec, log)
	deleted, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("deleted", deleted).Msg("expired sessions cleared")
	return nil
}
