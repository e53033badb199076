// Package bootstrap wires the whole server together: configuration,
// logging, storage backends, the processor and the HTTP listener, plus
// graceful shutdown.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"refract-server-go/internal/engine"
	"refract-server-go/internal/filters"
	"refract-server-go/internal/pipeline"
	platformconfig "refract-server-go/internal/platform/config"
	platformerrors "refract-server-go/internal/platform/errors"
	platformlogging "refract-server-go/internal/platform/logging"
	"refract-server-go/internal/security"
	"refract-server-go/internal/service"
	"refract-server-go/internal/storage"
	httptransport "refract-server-go/internal/transport/http"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID      string
	Kind    platformerrors.Kind
	Execute stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string
	logger     *slog.Logger
	loader     storage.Loader
	results    storage.Store
	processor  *service.Processor
	router     *gin.Engine
}

// Run starts the service lifecycle: initialize dependencies in order,
// serve until a signal arrives, then drain the listener.
func Run(ctx context.Context) error {
	state := &appState{}
	for _, step := range initGraph() {
		if err := step.Execute(ctx, state); err != nil {
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
	}

	logger := state.logger
	logger.Info("starting server",
		"addr", state.config.Server.Address(),
		"config", state.configPath,
		"unsafe", state.config.Security.AllowUnsafe,
		"result_storage", state.config.ResultStorage.Type,
	)

	srv := &http.Server{
		Addr:              state.config.Server.Address(),
		Handler:           state.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return platformerrors.Wrap(platformerrors.KindBootstrap, "http.listen",
				"http server failed", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func initGraph() []initStep {
	return []initStep{
		{ID: "config:load", Kind: platformerrors.KindConfig, Execute: loadConfigStep},
		{ID: "logging:init", Kind: platformerrors.KindBootstrap, Execute: initLoggingStep},
		{ID: "storage:init", Kind: platformerrors.KindStorage, Execute: initStorageStep},
		{ID: "service:init", Kind: platformerrors.KindBootstrap, Execute: initServiceStep},
		{ID: "http:init", Kind: platformerrors.KindBootstrap, Execute: initRouterStep},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	res, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = res.Config
	state.configPath = res.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	state.logger = platformlogging.New(platformlogging.Config{
		Level:  state.config.Log.Level,
		Format: state.config.Log.Format,
	})
	slog.SetDefault(state.logger)
	return nil
}

// initStorageStep builds the source loader chain and the result store.
// Storages that double as loaders go first; the HTTP fetch adaptor is
// always the last resort.
func initStorageStep(ctx context.Context, state *appState) error {
	cfg := state.config
	var chain storage.LoaderChain

	if cfg.FileStorage.Enabled {
		fs, err := storage.NewFileStorage(cfg.FileStorage.Root)
		if err != nil {
			return err
		}
		chain = append(chain, fs)
	}

	var s3store *storage.S3Storage
	if cfg.S3.Enabled {
		var err error
		s3store, err = storage.NewS3Storage(storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return err
		}
		if err := s3store.EnsureBucket(ctx); err != nil {
			return err
		}
		chain = append(chain, s3store)
	}

	chain = append(chain, storage.NewHTTPLoader(storage.HTTPLoaderConfig{
		AllowedSources: cfg.HTTPLoader.AllowedSources,
		MaxBodySize:    cfg.HTTPLoader.MaxBodySize,
		Timeout:        cfg.HTTPLoader.Timeout.Std(),
		UserAgent:      cfg.HTTPLoader.UserAgent,
		DefaultScheme:  cfg.HTTPLoader.DefaultScheme,
	}))
	state.loader = chain

	switch cfg.ResultStorage.Type {
	case "", "none":
		state.results = nil
	case "file":
		fs, err := storage.NewFileStorage(cfg.ResultStorage.Root)
		if err != nil {
			return err
		}
		state.results = fs
	case "redis":
		rs, err := storage.NewRedisStore(storage.RedisConfig{
			Addr:     cfg.ResultStorage.Redis.Addr,
			Username: cfg.ResultStorage.Redis.Username,
			Password: cfg.ResultStorage.Redis.Password,
			DB:       cfg.ResultStorage.Redis.DB,
			Prefix:   cfg.ResultStorage.Redis.Prefix,
			TTL:      cfg.ResultStorage.TTL.Std(),
		})
		if err != nil {
			return err
		}
		state.results = rs
	case "s3":
		if s3store == nil {
			return platformerrors.New(platformerrors.KindConfig, "storage:init",
				"s3 result storage requires the s3 section to be enabled")
		}
		state.results = s3store
	default:
		return platformerrors.Newf(platformerrors.KindConfig, "storage:init",
			"unknown result storage type %q", cfg.ResultStorage.Type)
	}
	return nil
}

func initServiceStep(_ context.Context, state *appState) error {
	cfg := state.config

	eng := engine.New(state.logger)
	loader := state.loader
	fetch := func(ctx context.Context, uri string) ([]byte, error) {
		blob, err := loader.Load(ctx, uri)
		return blob.Data, err
	}

	state.processor = service.NewProcessor(
		service.Config{
			LoadTimeout:    cfg.Processor.LoadTimeout.Std(),
			ProcessTimeout: cfg.Processor.ProcessTimeout.Std(),
			ResultTTL:      cfg.ResultStorage.TTL.Std(),
		},
		security.NewSigner(cfg.Security.Secret, cfg.Security.AllowUnsafe),
		filters.NewResolver(cfg.Processor.IgnoreUnknownFilters, state.logger),
		security.NewGuard(security.Limits{
			MaxFileSize: cfg.Security.MaxFileSize,
			MaxWidth:    cfg.Security.MaxWidth,
			MaxHeight:   cfg.Security.MaxHeight,
			MaxPixels:   cfg.Security.MaxPixels,
		}, state.logger),
		loader,
		state.results,
		pipeline.NewExecutor(eng, fetch, state.logger),
		state.logger,
	)
	return nil
}

func initRouterStep(_ context.Context, state *appState) error {
	state.router = httptransport.Build(httptransport.Options{
		Processor: state.processor,
		Logger:    state.logger,
		Debug:     state.config.Server.Debug,
	})
	return nil
}
