package cli

import (
	"context"
	"fmt"
	"strings"

	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/infrastructure/cache"
	"multipost/infrastructure/clients/facebook"
	"multipost/infrastructure/clients/tiktok"
	"multipost/infrastructure/clients/youtube"
	"multipost/infrastructure/configuration"
	"multipost/infrastructure/contentgen"
	"multipost/infrastructure/logger"
	"multipost/infrastructure/persistence"
	"multipost/infrastructure/pubsub"
	"multipost/infrastructure/realtime"
	"multipost/infrastructure/retry"
	"multipost/infrastructure/servicebus"
	"multipost/usecase"
)

// App is the wired object graph shared by every command.
type App struct {
	Config    configuration.Config
	Store     repository.ICredentialStore
	Creds     *usecase.CredentialManager
	Tracker   *usecase.ResultTracker
	Platforms *usecase.PlatformManager
	Hub       *realtime.Hub

	closers []func()
}

// Close releases broker clients and database handles in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// AppFactory builds the App for one command invocation.
type AppFactory func(ctx context.Context) (*App, error)

func defaultAppFactory(ctx context.Context) (*App, error) {
	return BuildApp(ctx, configuration.C)
}

// BuildApp selects the storage backends, registers the enabled platform
// adapters and attaches the optional outcome brokers. Missing brokers are
// logged and skipped; a misconfigured store or platform is an error.
func BuildApp(ctx context.Context, cfg configuration.Config) (*App, error) {
	app := &App{Config: cfg, Hub: realtime.NewPublishHub()}
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, configError(err)
	}

	store, err := app.credentialStore(ctx)
	if err != nil {
		return fail(fmt.Errorf("credential store %q: %w", cfg.Storage.CredentialBackend, err))
	}
	app.Store = store
	outcomes, err := app.outcomeStore(ctx)
	if err != nil {
		return fail(fmt.Errorf("outcome store %q: %w", cfg.Storage.OutcomeBackend, err))
	}

	policy := retry.NewPolicy(retry.Config{
		MaxAttempts:  cfg.Publish.Retry.MaxAttempts,
		InitialDelay: cfg.Publish.Retry.InitialDelay,
		MaxDelay:     cfg.Publish.Retry.MaxDelay,
		Multiplier:   cfg.Publish.Retry.Multiplier,
	})
	app.Creds = usecase.NewCredentialManager(store, cfg.Publish.RefreshMargin, policy).
		WithRefreshTimeout(cfg.Publish.RefreshTimeout)
	app.Tracker = usecase.NewResultTracker(outcomes)
	app.Platforms = usecase.NewPlatformManager(app.Creds, app.Tracker, app.generator(ctx), usecase.PlatformManagerOptions{
		PlatformTimeout:  cfg.Publish.PlatformTimeout,
		GeneratorTimeout: cfg.ContentGen.Timeout,
		Retry:            policy,
	}, app.notifiers(ctx)...)

	for _, name := range cfg.Publish.Platforms {
		adapter, err := newAdapter(cfg, model.ParsePlatformID(name))
		if err != nil {
			return fail(err)
		}
		app.Platforms.Register(adapter)
	}
	return app, nil
}

func newAdapter(cfg configuration.Config, p model.PlatformID) (repository.IPlatformAdapter, error) {
	switch p {
	case model.PlatformYouTube:
		return youtube.NewAdapter(youtube.Config{
			ClientID:      cfg.YouTube.ClientID,
			ClientSecret:  cfg.YouTube.ClientSecret,
			RedirectURL:   cfg.YouTube.RedirectURI,
			CategoryID:    cfg.YouTube.CategoryID,
			PrivacyStatus: cfg.YouTube.PrivacyStatus,
			Endpoint:      cfg.YouTube.Endpoint,
			HTTPTimeout:   cfg.Publish.HTTPTimeout,
		}), nil
	case model.PlatformFacebook:
		return facebook.NewAdapter(facebook.Config{
			ClientID:     cfg.Facebook.ClientID,
			ClientSecret: cfg.Facebook.ClientSecret,
			RedirectURL:  cfg.Facebook.RedirectURI,
			GraphVersion: cfg.Facebook.GraphVersion,
			PageID:       cfg.Facebook.PageID,
			HTTPTimeout:  cfg.Publish.HTTPTimeout,
		}), nil
	case model.PlatformTikTok:
		return tiktok.NewAdapter(tiktok.Config{
			ClientKey:    cfg.TikTok.ClientKey,
			ClientSecret: cfg.TikTok.ClientSecret,
			RedirectURL:  cfg.TikTok.RedirectURI,
			PrivacyLevel: cfg.TikTok.PrivacyLevel,
			HTTPTimeout:  cfg.Publish.HTTPTimeout,
		}), nil
	}
	return nil, fmt.Errorf("%w: %s", usecase.ErrUnknownPlatform, p)
}

// redirectURL is where the platform sends the browser after consent.
func redirectURL(cfg configuration.Config, p model.PlatformID) string {
	switch p {
	case model.PlatformYouTube:
		return cfg.YouTube.RedirectURI
	case model.PlatformFacebook:
		return cfg.Facebook.RedirectURI
	case model.PlatformTikTok:
		return cfg.TikTok.RedirectURI
	}
	return ""
}

func (a *App) credentialStore(ctx context.Context) (repository.ICredentialStore, error) {
	cfg := a.Config
	switch strings.ToLower(cfg.Storage.CredentialBackend) {
	case "", "file":
		return persistence.NewFileCredentialRepository(cfg.Storage.CredentialDir)
	case "memory":
		return persistence.NewMemoryCredentialRepository(), nil
	case "postgres":
		db, err := persistence.NewPostgreSQLDB()
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = db.Close() })
		if err := persistence.EnsurePublishSchema(db); err != nil {
			return nil, err
		}
		return persistence.NewCredentialRepository(db), nil
	case "mssql":
		db, err := persistence.NewMSSQLDB()
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = db.Close() })
		if err := persistence.EnsureCredentialSchemaMSSQL(db); err != nil {
			return nil, err
		}
		return persistence.NewCredentialRepositoryMSSQL(db), nil
	case "redis":
		rc := cfg.RedisClient
		client, err := cache.NewCache(ctx, rc.Host+":"+rc.Port, rc.Username, rc.Password, rc.DB)
		if client != nil {
			a.onClose(func() { _ = client.Close() })
		}
		if err != nil {
			return nil, err
		}
		return cache.NewCredentialCache(client, rc.Prefix), nil
	}
	return nil, fmt.Errorf("unsupported credential backend")
}

func (a *App) outcomeStore(ctx context.Context) (repository.IOutcomeStore, error) {
	cfg := a.Config
	switch strings.ToLower(cfg.Storage.OutcomeBackend) {
	case "", "file":
		return persistence.NewFileOutcomeRepository(cfg.Storage.OutcomeDir)
	case "memory":
		return persistence.NewMemoryOutcomeRepository(), nil
	case "postgres":
		db, err := persistence.NewPostgreSQLDB()
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = db.Close() })
		if err := persistence.EnsurePublishSchema(db); err != nil {
			return nil, err
		}
		return persistence.NewOutcomeRepository(db), nil
	case "mssql":
		db, err := persistence.NewMSSQLDB()
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = db.Close() })
		if err := persistence.EnsurePublishSchemaMSSQL(db); err != nil {
			return nil, err
		}
		return persistence.NewOutcomeRepositoryMSSQL(db), nil
	case "mysql":
		db, err := persistence.NewMySQLGorm()
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.onClose(func() { _ = sqlDB.Close() })
		}
		repo := persistence.NewOutcomeRepositoryGorm(db)
		if err := repo.AutoMigrate(); err != nil {
			return nil, err
		}
		return repo, nil
	case "mongo":
		client, err := persistence.NewMongoDb()
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = client.Disconnect(context.Background()) })
		repo := persistence.NewOutcomeRepositoryMongo(client, cfg.Database.Mongo.Name)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unsupported outcome backend")
}

// generator returns nil when content generation is disabled or unavailable;
// publishing then falls back to user metadata and the file name.
func (a *App) generator(ctx context.Context) repository.IContentGenerator {
	cfg := a.Config.ContentGen
	if !cfg.Enabled {
		return nil
	}
	gen, err := contentgen.NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Content generator not available - continuing without it")
		return nil
	}
	return gen
}

func (a *App) notifiers(ctx context.Context) []repository.IPublishNotifier {
	cfg := a.Config
	out := []repository.IPublishNotifier{a.Hub}

	if cfg.Pubsub.ProjectID != "" {
		client, err := pubsub.NewPubSub(ctx, cfg.Pubsub.ProjectID)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("PubSub not available - continuing without outcome events")
		} else {
			publisher := pubsub.NewOutcomePublisher(client, cfg.Pubsub.Topic)
			a.onClose(func() { _ = client.Close() })
			a.onClose(publisher.Close)
			out = append(out, publisher)
		}
	}

	if cfg.ServiceBus.Namespace != "" {
		client, err := servicebus.NewServiceBus(ctx, cfg.ServiceBus.Namespace)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - continuing without outcome messages")
			return out
		}
		a.onClose(func() { _ = client.Close(context.Background()) })
		sender, err := servicebus.NewOutcomeSender(client, cfg.ServiceBus.Queue)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Service Bus sender not available")
			return out
		}
		a.onClose(func() { _ = sender.Close(context.Background()) })
		out = append(out, sender)
	}
	return out
}
