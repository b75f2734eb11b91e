package main

import (
	"io"
	"net/http"

	"github.com/deepnoodle-ai/execview/api"
	"github.com/deepnoodle-ai/execview/config"
	"github.com/deepnoodle-ai/execview/log"
	"github.com/deepnoodle-ai/execview/prefs"
	"github.com/deepnoodle-ai/wonton/cli"
	"github.com/fatih/color"
)

const version = "0.1.0"

// out receives command output. It is swapped out in tests.
var out io.Writer = color.Output

func newApp() *cli.App {
	app := cli.New("execview").
		Description("Observe and control workflow executions").
		Version(version).
		GlobalFlags(
			cli.String("config", "c").
				Env("EXECVIEW_CONFIG").
				Help("Path to a config file (defaults to execview.yaml in the working directory)"),
			cli.String("base-url", "").
				Env("EXECVIEW_BASE_URL").
				Help("Base URL of the execution service"),
			cli.String("log-level", "").
				Env("EXECVIEW_LOG_LEVEL").
				Help("Log level to use (none, debug, info, warn, error)"),
			cli.Bool("no-color", "").
				Help("Disable colored output"),
		)

	registerListCommand(app)
	registerShowCommand(app)
	registerStartCommand(app)
	registerStopCommand(app)
	registerWatchCommand(app)
	registerProfileCommand(app)
	return app
}

// runtime holds what every command needs once global flags are resolved.
type runtime struct {
	config *config.Config
	logger log.Logger
	client *api.Client
	prefs  *prefs.Store
}

func setup(ctx *cli.Context) (*runtime, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	cfg = config.Merge(cfg, &config.Config{
		Server:  config.Server{BaseURL: ctx.String("base-url")},
		Logging: config.Logging{Level: ctx.String("log-level"), NoColor: ctx.Bool("no-color")},
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newRuntime(cfg), nil
}

func newRuntime(cfg *config.Config) *runtime {
	if cfg.Logging.NoColor {
		color.NoColor = true
	}
	logger := log.NewWithOptions(log.Options{
		Level:   log.LevelFromString(cfg.Logging.Level),
		NoColor: cfg.Logging.NoColor,
	})
	client := api.New(cfg.Server.BaseURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.Server.Timeout.Std()}),
		api.WithLogger(logger),
		api.WithMaxRetries(cfg.Server.MaxRetries),
	)
	return &runtime{
		config: cfg,
		logger: logger,
		client: client,
		prefs:  prefs.Open(cfg.Preferences.Path, logger),
	}
}

// artifactProfile resolves the capture profile for a new execution: an
// explicit flag wins, then the config file, then the saved preference.
func (rt *runtime) artifactProfile(flag string) (prefs.Profile, error) {
	for _, value := range []string{flag, rt.config.Preferences.ArtifactProfile} {
		if value == "" {
			continue
		}
		return prefs.ParseProfile(value)
	}
	return rt.prefs.Profile(), nil
}
