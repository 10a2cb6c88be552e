package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/councilchamber/internal/config"
	"github.com/councilchamber/internal/council"
	"github.com/councilchamber/internal/history"
	"github.com/councilchamber/internal/llm"
	"github.com/councilchamber/internal/logging"
	"github.com/councilchamber/internal/persona"
	"github.com/councilchamber/internal/preferences"
	"github.com/councilchamber/internal/storage"
	"github.com/councilchamber/pkg/models"
)

// CredentialEnvVars are read, in order, when no --api-key flag is given
var CredentialEnvVars = []string{"COUNCIL_API_KEY", "OPENROUTER_API_KEY"}

// catalogTimeout bounds model discovery
const catalogTimeout = 20 * time.Second

// App holds the services shared by every command
type App struct {
	Config      *config.Config
	Store       storage.Store
	Personas    []models.Persona
	History     *history.Store
	Preferences *preferences.Preferences
	Client      llm.ChatClient
	Catalog     *llm.Catalog
	Dispatcher  *council.Dispatcher

	closers []io.Closer
}

type appOptions struct {
	// logToFile sends logs to the data directory instead of stderr
	logToFile bool
	// size overrides general.council_size when positive
	size int
}

// newApp loads configuration and wires the application together
func newApp(c *cli.Context, opts appOptions) (*App, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.size > 0 {
		cfg.General.CouncilSize = opts.size
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &App{Config: cfg}

	logOpts := logging.Options{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty}
	if opts.logToFile {
		file, err := logging.OpenLogFile(cfg.General.DataDir)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, file)
		logOpts.Output = file
		logOpts.Pretty = false
	}
	if err := logging.Setup(logOpts); err != nil {
		app.Close()
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	if cfg.Path != "" {
		log.Debug().Str("path", cfg.Path).Msg("Loaded configuration")
	}

	if err := app.openStore(c.Context); err != nil {
		app.Close()
		return nil, err
	}

	registry, err := persona.Load(cfg.Personas.File)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Personas, err = registry.Build(cfg.General.CouncilSize)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.History = history.NewStore(app.Store, cfg.History.Limit)
	app.Preferences = preferences.New(app.Store)
	app.Client = newChatClient(cfg)
	app.Catalog = llm.NewCatalog(cfg.Upstream.BaseURL, &http.Client{Timeout: catalogTimeout})
	app.Dispatcher = council.NewDispatcher(app.Client,
		council.WithRecorder(app.History),
		council.WithCallTimeout(cfg.Timeout()),
	)

	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.General.Store {
	case config.StoreMemory:
		a.Store = storage.NewMemoryStore()
	case config.StorePostgres:
		store, err := storage.OpenPostgres(ctx, a.Config.Postgres.URL)
		if err != nil {
			return fmt.Errorf("failed to open postgres store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store)
	default:
		store, err := storage.NewFileStore(a.Config.StorePath())
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		a.Store = store
	}
	log.Debug().Str("store", a.Config.General.Store).Msg("Store ready")
	return nil
}

func newChatClient(cfg *config.Config) llm.ChatClient {
	if cfg.Upstream.Backend == config.BackendLangchain {
		return llm.NewLangchainClient(cfg.Upstream.BaseURL, cfg.Timeout())
	}
	return llm.NewHTTPClient(cfg.Upstream.BaseURL,
		llm.WithTimeout(cfg.Timeout()),
		llm.WithRequestsPerMinute(cfg.Upstream.RequestsPerMinute),
	)
}

// Close abandons any running round, waits briefly for a completed round to
// reach history, then releases the store
func (a *App) Close() {
	if a.Dispatcher != nil {
		// The history store is among the closers; let a finishing round's
		// write land first
		ctx, cancel := context.WithTimeout(context.Background(), council.DefaultRecordTimeout)
		if err := a.Dispatcher.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Closing before history write finished")
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}

// Credential resolves the API key: the flag, then the environment, then the
// saved preference. An empty result means none is configured.
func (a *App) Credential(ctx context.Context, flagValue string) (string, error) {
	if credential := envCredential(flagValue); credential != "" {
		return credential, nil
	}
	return a.Preferences.Credential(ctx)
}

// envCredential is the API key given by flag or environment, without the
// saved preference
func envCredential(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	for _, name := range CredentialEnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Model resolves the model: the flag, then the saved preference, then the
// configured default
func (a *App) Model(ctx context.Context, flagValue string) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	return a.Preferences.Model(ctx, a.Config.Upstream.Model)
}
