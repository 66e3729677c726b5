package commands

import (
	"context"
	"io"
	"os"

	"github.com/mythos-linux/mythos/pkg/config"
	"github.com/mythos-linux/mythos/pkg/policy"
	"github.com/mythos-linux/mythos/pkg/steps"
	"github.com/mythos-linux/mythos/pkg/telemetry"
	"github.com/mythos-linux/mythos/pkg/theme"
	"github.com/rs/zerolog"
)

// app is what every command needs: settings, telemetry and the repository.
type app struct {
	settings  *config.AppConfig
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger
	store     *config.FileStore
	registry  *steps.DirRegistry
}

// loadSettings applies the global flags on top of the settings file and
// environment.
func loadSettings() (*config.AppConfig, error) {
	path := configPath
	if path == "" {
		dir := rootDir
		if dir == "" {
			dir = os.Getenv(config.EnvRoot)
		}
		if dir == "" {
			dir = "."
		}
		path = config.FindAppConfig(dir)
	}

	settings, err := config.LoadAppConfig(path)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		settings.Root = rootDir
	}
	if verbose {
		settings.Telemetry.Logging.Level = "debug"
	}
	if settings.Telemetry.ServiceVersion == "" || settings.Telemetry.ServiceVersion == "dev" {
		settings.Telemetry.ServiceVersion = buildVersion
	}
	return settings, nil
}

func newApp() (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&settings.Telemetry)
	if err != nil {
		return nil, err
	}
	logger := *tel.Logger.Zerolog()

	logger.Debug().
		Str("root", settings.Root).
		Str("policy", settings.Policy).
		Bool("history", settings.History.Enabled).
		Msg("Loaded settings")

	return &app{
		settings:  settings,
		telemetry: tel,
		logger:    logger,
		store:     config.NewFileStore(settings.StoreConfig(), logger),
		registry:  steps.NewDirRegistry(settings.Root, settings.Bootstrap, logger),
	}, nil
}

// close flushes telemetry. Errors are logged; they never change the outcome
// of a command.
func (a *app) close(ctx context.Context) {
	if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// themes returns the theme manager for the first non-empty name.
func (a *app) themes(names ...string) (*theme.Manager, error) {
	for _, name := range names {
		if name != "" {
			return theme.NewManager(name)
		}
	}
	return theme.NewManager(a.settings.Theme)
}

// colour reports whether styled output should be written to w.
func colour(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return policy.Interactive(f)
}

// renderer creates a text renderer for cmd output.
func (a *app) renderer(w io.Writer, names ...string) (*theme.Renderer, error) {
	themes, err := a.themes(names...)
	if err != nil {
		return nil, err
	}
	return theme.NewRenderer(w, themes, colour(w)), nil
}
