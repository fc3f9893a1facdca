// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal-workers/internal/common/auth"
	"portal-workers/internal/common/aws"
	"portal-workers/internal/common/camunda"
	"portal-workers/internal/common/config"
	"portal-workers/internal/common/database"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/common/observability"
	"portal-workers/internal/form/formapi"
	"portal-workers/internal/form/session"
	"portal-workers/internal/questions"
	"portal-workers/internal/storage/docstore"

	ia "portal-workers/internal/workers/application/index-application"
	sn "portal-workers/internal/workers/application/send-notification"
	vad "portal-workers/internal/workers/application/validate-application-draft"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output).
		WithFields(map[string]interface{}{"service": cfg.App.Name, "version": cfg.App.Version})

	if err := run(cfg, log); err != nil {
		log.Error("worker manager stopped with error", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	log.Info("worker manager stopped", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting worker manager", map[string]interface{}{"environment": cfg.App.Environment})

	obs := observability.New("worker-manager", log)
	defer obs.Shutdown()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err := retryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return err
	}
	defer pg.Close()
	log.Info("PostgreSQL connected successfully", nil)

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		return err
	}
	defer rdb.Close()
	log.Info("Redis connected successfully", nil)

	// --- Elasticsearch ---
	var es *database.ElasticsearchClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return es.Ping(ctx)
	}, 10, 2*time.Second, log, "Elasticsearch connection")
	if err != nil {
		return err
	}
	log.Info("Elasticsearch connected successfully", nil)

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(ctx, func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			SubmissionProcessID:    cfg.Camunda.SubmissionProcessID,
		})
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		return err
	}
	defer zeebe.Close()
	log.Info("Zeebe client connected successfully", nil)

	docs, err := docstore.Open(cfg.Storage.Backend, docstore.Backing{
		Redis:       rdb.Client,
		DB:          pg.DB,
		PostgresDSN: pg.DSN,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	repo, err := questions.NewRepository(questions.Config{
		CacheTTL:        cfg.Form.QuestionCacheTTL,
		SchemaCacheSize: cfg.Form.SchemaCacheSize,
		PreloadLimit:    cfg.Form.PreloadLimit,
	}, pg.DB, rdb.Client, log)
	if err != nil {
		return err
	}
	if err := repo.Preload(ctx, cfg.Form.PreloadEvents); err != nil {
		// Workers load question sets lazily, so a cold cache is not fatal.
		log.Warn("question preload failed", map[string]interface{}{"error": err})
	}

	var keycloak *auth.KeycloakClient
	if kc := cfg.Auth.Keycloak; kc.URL != "" {
		keycloak = auth.NewKeycloakClient(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret)
	}

	notifications, err := newNotificationHandler(ctx, cfg, docs, repo, keycloak, log)
	if err != nil {
		return err
	}

	handlers := map[string]camunda.JobHandler{
		vad.TaskType: vad.NewHandler(vad.LoadConfig(), docs, repo, log),
		ia.TaskType:  ia.NewHandler(ia.LoadConfig(), docs, repo, es, log),
		sn.TaskType:  notifications,
	}

	var workers []*camunda.Worker
	for taskType, handler := range handlers {
		if !config.IsWorkerEnabled(cfg, taskType) {
			log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
			continue
		}
		wcfg := config.GetWorkerConfig(cfg, taskType)
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
			Observability: obs,
		}, handler, log))
	}
	log.Info("all workers started", map[string]interface{}{"count": len(workers)})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler(map[string]func(context.Context) error{
		"postgres":      pg.Ping,
		"redis":         rdb.Ping,
		"elasticsearch": es.Ping,
		"zeebe":         zeebe.HealthCheck,
	}, 5*time.Second))

	var forms *formapi.Server
	if keycloak != nil {
		deps, err := newSessionDeps(ctx, cfg, docs, repo, zeebe, obs)
		if err != nil {
			return err
		}
		forms = formapi.NewServer(formapi.Config{
			Collection:  cfg.Form.CollectionID,
			IdleTimeout: cfg.Form.SessionIdleTimeout,
		}, deps, keycloak, log)
		mux.Handle("/api/form/", forms.Handler())
		log.Info("form API mounted", map[string]interface{}{"collection": cfg.Form.CollectionID})
	} else {
		log.Warn("keycloak not configured, form API disabled", nil)
	}

	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if forms != nil {
		g.Go(func() error {
			forms.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		for _, w := range workers {
			w.Close()
		}
		return err
	})

	return g.Wait()
}

// newNotificationHandler builds the send-notification worker with the
// channels that are configured. Missing channels are skipped by the handler.
func newNotificationHandler(ctx context.Context, cfg *config.Config, docs docstore.Store, repo *questions.Repository, keycloak *auth.KeycloakClient, log logger.Logger) (*sn.Handler, error) {
	var (
		mailer     sn.Mailer
		publisher  sn.Publisher
		identities sn.IdentityProvider
	)
	if keycloak != nil {
		identities = keycloak
	}

	awsCfg := cfg.Integrations.AWS
	if awsCfg.SES.Enabled {
		client, err := aws.NewSESClient(ctx, awsCfg.Region, awsCfg.SES.FromEmail)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		mailer = client
	}
	if awsCfg.SNS.Enabled {
		client, err := aws.NewSNSClient(ctx, awsCfg.Region, awsCfg.SNS.TopicARN)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		publisher = client
	}
	snCfg := sn.LoadConfig()
	snCfg.EmailEnabled = awsCfg.SES.Enabled
	snCfg.TopicEnabled = awsCfg.SNS.Enabled
	return sn.NewHandler(snCfg, docs, repo, mailer, publisher, identities, log), nil
}

// newSessionDeps collects what the form sessions share. Resume uploads stay
// disabled until an S3 bucket is configured.
func newSessionDeps(ctx context.Context, cfg *config.Config, docs docstore.Store, repo *questions.Repository, zeebe *camunda.Client, obs *observability.Observability) (session.Deps, error) {
	deps := session.Deps{
		Docs:             docs,
		Questions:        repo,
		Submissions:      zeebe,
		Observability:    obs,
		AutosaveInterval: cfg.Form.AutosaveInterval,
		MaxResumeBytes:   cfg.Form.MaxResumeBytes,
	}

	awsCfg := cfg.Integrations.AWS
	if awsCfg.S3.Bucket != "" {
		client, err := aws.NewS3Client(ctx, awsCfg.Region, awsCfg.S3.Bucket, awsCfg.S3.PublicBaseURL)
		if err != nil {
			return session.Deps{}, fmt.Errorf("s3 client: %w", err)
		}
		deps.Uploader = client
	}
	return deps, nil
}
