// Command reactiond starts the reactioncut daemon: the HTTP surface over
// submission create/update/execute/edit-* and workflow pause/resume/
// cancel (spec §6), backed by the Workflow Engine, the Upload Queue, the
// Remote Reconciliation Loop, and the Recovery Sweeps.
package main

import (
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

	"github.com/redis/go-redis/v9"

	"reactioncut/internal/api"
	"reactioncut/internal/credentials"
	"reactioncut/internal/lifecycle"
	"reactioncut/internal/mediaclient"
	"reactioncut/internal/observability/logging"
	"reactioncut/internal/observability/metrics"
	"reactioncut/internal/reconcile"
	"reactioncut/internal/recorder"
	"reactioncut/internal/recovery"
	"reactioncut/internal/remoteapi"
	"reactioncut/internal/store"
	"reactioncut/internal/transcoder"
	"reactioncut/internal/uploadclient"
	"reactioncut/internal/uploadqueue"
	"reactioncut/internal/workflow"
)

const credentialKey = "bilibili"

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	storageDriver := flag.String("storage-driver", "", "datastore driver (memory or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	baseDir := flag.String("base-dir", "", "base directory workflow runs write clip/merge/output files into")
	credentialSecret := flag.String("credential-secret", "", "master passphrase the credential store derives its encryption key from")
	ffmpegBinary := flag.String("ffmpeg-binary", "ffmpeg", "path to the ffmpeg binary the transcoder shells out to")
	transcoderMaxConcurrent := flag.Int64("transcoder-max-concurrent", 2, "maximum concurrent ffmpeg jobs")
	mediaRefreshURL := flag.String("media-refresh-url", "", "cookie refresh endpoint for the Media JSON API client")
	uploadConcurrency := flag.Int("upload-concurrency", 0, "parallel segment upload fan-out")
	uploadPollInterval := flag.Duration("upload-poll-interval", 0, "upload queue consumer poll interval when idle")
	reconcileInterval := flag.Duration("reconcile-interval", 0, "interval between remote reconciliation passes")
	redisAddr := flag.String("redis-addr", "", "Redis address used to wake the upload queue consumer immediately on enqueue")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "json", "log format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("REACTIOND_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("REACTIOND_LOG_FORMAT")),
	})
	recorderMetrics := metrics.Default()

	baseDirValue := firstNonEmpty(*baseDir, os.Getenv("REACTIOND_BASE_DIR"))
	if baseDirValue == "" {
		baseDirValue = "data/tasks"
	}
	if err := os.MkdirAll(baseDirValue, 0o755); err != nil {
		logger.Error("failed to create base directory", "error", err)
		os.Exit(1)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	repo, err := openRepository(ctx, repositoryConfig{
		driver:         firstNonEmpty(*storageDriver, os.Getenv("REACTIOND_STORAGE_DRIVER")),
		postgresDSN:    firstNonEmpty(*postgresDSN, os.Getenv("REACTIOND_POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		maxConns:       resolveInt(*postgresMaxConns, "REACTIOND_POSTGRES_MAX_CONNS"),
		minConns:       resolveInt(*postgresMinConns, "REACTIOND_POSTGRES_MIN_CONNS"),
		acquireTimeout: resolveDuration(*postgresAcquireTimeout, "REACTIOND_POSTGRES_ACQUIRE_TIMEOUT"),
		appName:        firstNonEmpty(*postgresAppName, os.Getenv("REACTIOND_POSTGRES_APP_NAME")),
	})
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}()

	secret := firstNonEmpty(*credentialSecret, os.Getenv("REACTIOND_CREDENTIAL_SECRET"))
	if secret == "" {
		logger.Error("credential secret is required (--credential-secret or REACTIOND_CREDENTIAL_SECRET)")
		os.Exit(1)
	}
	credentialStore, err := credentials.New(repo, []byte(secret))
	if err != nil {
		logger.Error("failed to initialise credential store", "error", err)
		os.Exit(1)
	}
	creds := credentialStore.ForKey(credentialKey)

	var mediaOpts []mediaclient.Option
	mediaOpts = append(mediaOpts, mediaclient.WithLogger(logging.WithComponent(logger, "mediaclient")))
	if refreshURL := firstNonEmpty(*mediaRefreshURL, os.Getenv("REACTIOND_MEDIA_REFRESH_URL")); refreshURL != "" {
		mediaOpts = append(mediaOpts, mediaclient.WithRefreshURL(refreshURL))
	}
	media := mediaclient.New(mediaOpts...)

	remote := &remoteapi.Client{
		Media:       media,
		Credentials: creds,
		Refresher:   media,
		Logger:      logging.WithComponent(logger, "remoteapi"),
	}

	transcoderBinary := firstNonEmpty(*ffmpegBinary, os.Getenv("REACTIOND_FFMPEG_BINARY"))
	transcoderRunner := transcoder.New(transcoderBinary, *transcoderMaxConcurrent,
		transcoder.WithLogger(logging.WithComponent(logger, "transcoder")),
	)
	prober := transcoder.NewProber()

	engine := &workflow.Engine{
		Store:      repo,
		Transcoder: transcoderRunner,
		Prober:     prober,
		BaseDir:    baseDirValue,
		Logger:     logging.WithComponent(logger, "workflow"),
	}
	controller := &workflow.Controller{Store: repo}

	uploader := uploadclient.New(uploadclient.WithLogger(logging.WithComponent(logger, "uploadclient")))

	queueCfg := uploadqueue.Config{
		UploadConcurrency: resolveInt(*uploadConcurrency, "REACTIOND_UPLOAD_CONCURRENCY"),
		PollInterval:      resolveDuration(*uploadPollInterval, "REACTIOND_UPLOAD_POLL_INTERVAL"),
	}
	queue := uploadqueue.New(repo, uploader, remote, creds, media, queueCfg)
	queue.Logger = logging.WithComponent(logger, "uploadqueue")
	controller.EditCache = queue.EditCache

	if redisAddress := firstNonEmpty(*redisAddr, os.Getenv("REACTIOND_REDIS_ADDR")); redisAddress != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddress})
		waker, err := uploadqueue.NewRedisWaker(ctx, redisClient, logging.WithComponent(logger, "uploadqueue-waker"))
		if err != nil {
			logger.Warn("failed to configure redis wake notifications, falling back to polling", "error", err)
		} else {
			queue.Waker = waker
		}
	}
	queue.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Shutdown(shutdownCtx); err != nil {
			logger.Warn("upload queue shutdown did not complete cleanly", "error", err)
		}
	}()

	reconcileLoop := reconcile.New(repo, remote, creds, reconcile.Config{
		Interval: resolveDuration(*reconcileInterval, "REACTIOND_RECONCILE_INTERVAL"),
	})
	reconcileLoop.Logger = logging.WithComponent(logger, "reconcile")

	sweeper := recovery.New(repo, engine, transcoderRunner)
	sweeper.Logger = logging.WithComponent(logger, "recovery")

	backgroundStop := lifecycle.WaitGroup(
		reconcileLoop.Start(ctx),
		sweeper.Start(ctx),
	)
	defer backgroundStop()

	// The Recorder Loop's network-facing collaborators, PlaybackSource and
	// StreamOpener, are out of scope for the submission/workflow surface
	// this daemon exposes; the registry is wired so a future caller can
	// register live rooms against the same store and transcoder without
	// touching this file again.
	recorderRegistry := recorder.NewRegistry()
	_ = recorderRegistry

	handler := api.NewHandler(repo, engine, controller, queue)
	handler.Remote = remote
	handler.Transcoder = transcoderRunner
	handler.Prober = prober
	handler.BaseDir = baseDirValue
	handler.Metrics = recorderMetrics
	handler.Logger = logging.WithComponent(logger, "api")

	mux := handler.Mux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			api.WriteError(w, http.StatusServiceUnavailable, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", recorderMetrics.Handler())

	requestLogged := logging.RequestLogger(logging.RequestLoggerConfig{Logger: logging.WithComponent(logger, "http")})(mux)

	listenAddr := firstNonEmpty(*addr, os.Getenv("REACTIOND_ADDR"))
	if listenAddr == "" {
		listenAddr = ":8090"
	}
	httpServer := &http.Server{Addr: listenAddr, Handler: requestLogged}

	serveErrs := make(chan error, 1)
	go func() {
		logger.Info("reactiond listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErrs:
		logger.Error("http server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful http shutdown failed", "error", err)
	}

	logger.Info("reactiond stopped")
}

type repositoryConfig struct {
	driver         string
	postgresDSN    string
	maxConns       int
	minConns       int
	acquireTimeout time.Duration
	appName        string
}

func openRepository(ctx context.Context, cfg repositoryConfig) (store.Repository, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.driver))
	if driver == "" {
		if cfg.postgresDSN != "" {
			driver = "postgres"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "memory":
		return store.NewMemoryRepository()
	case "postgres":
		if cfg.postgresDSN == "" {
			return nil, fmt.Errorf("postgres storage selected without a DSN")
		}
		var opts []store.Option
		if cfg.maxConns > 0 || cfg.minConns > 0 {
			opts = append(opts, store.WithPostgresPoolLimits(int32(cfg.maxConns), int32(cfg.minConns)))
		}
		if cfg.acquireTimeout > 0 {
			opts = append(opts, store.WithPostgresAcquireTimeout(cfg.acquireTimeout))
		}
		if cfg.appName != "" {
			opts = append(opts, store.WithPostgresApplicationName(cfg.appName))
		}
		return store.NewPostgresRepository(ctx, cfg.postgresDSN, opts...)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(envKey)); env != "" {
		var parsed int
		if _, err := fmt.Sscanf(env, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(envKey)); env != "" {
		if parsed, err := time.ParseDuration(env); err == nil {
			return parsed
		}
	}
	return 0
}
