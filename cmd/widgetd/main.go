package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Caldeiraaf/ipywidgets/internal/classload"
	"github.com/Caldeiraaf/ipywidgets/internal/config"
	"github.com/Caldeiraaf/ipywidgets/internal/document"
	"github.com/Caldeiraaf/ipywidgets/internal/httpapi"
	"github.com/Caldeiraaf/ipywidgets/internal/jupyter"
	"github.com/Caldeiraaf/ipywidgets/internal/persist"
	"github.com/Caldeiraaf/ipywidgets/internal/store"
	"github.com/Caldeiraaf/ipywidgets/internal/widgets"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

type cliOptions struct {
	configPath string

	addr        string
	kernelURL   string
	kernelToken string
	sessionName string

	stateFile       string
	autosaveSeconds int

	kernelWaitTimeoutSeconds   int
	stateRequestTimeoutSeconds int
	dropDefaults               bool

	corsOrigins string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	// Flags with environment variable defaults
	defaultAddr := ":8877"
	if v := os.Getenv("WIDGETD_ADDR"); v != "" {
		defaultAddr = v
	}
	defaultKernelURL := ""
	if v := os.Getenv("WIDGETD_KERNEL_URL"); v != "" {
		defaultKernelURL = v
	}

	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "widgetd",
		Short:         "Widget state daemon: mirrors Jupyter widget models over a kernel connection",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f := root.Flags()
	f.StringVar(&opts.configPath, "config", "", "Config file (.toml|.yaml|.json); explicit flags override file values")
	f.StringVar(&opts.addr, "addr", defaultAddr, "HTTP listen address, e.g. :8877")
	f.StringVar(&opts.kernelURL, "kernel-url", defaultKernelURL, "Kernel channels websocket URL, e.g. ws://localhost:8888/api/kernels/<id>/channels")
	f.StringVar(&opts.kernelToken, "kernel-token", "", "Token sent as Authorization header on the kernel dial")
	f.StringVar(&opts.sessionName, "session-name", "", "Session id stamped on kernel messages (empty generates one)")
	f.StringVar(&opts.stateFile, "state-file", "~/.widgetd/state.json", "Widget state file path (empty disables persistence)")
	f.IntVar(&opts.autosaveSeconds, "autosave-seconds", 0, "Autosave interval in seconds (0 disables)")
	f.IntVar(&opts.kernelWaitTimeoutSeconds, "kernel-wait-timeout-seconds", 0, "Startup wait for a kernel connection (0 waits forever)")
	f.IntVar(&opts.stateRequestTimeoutSeconds, "state-request-timeout-seconds", 10, "Per-comm state request timeout during reconstruction (0 waits forever)")
	f.BoolVar(&opts.dropDefaults, "drop-defaults", false, "Omit attributes equal to class defaults when saving state")
	f.StringVar(&opts.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug|info|warn|error")

	return root
}

// resolveConfig merges the optional config file with flag values. An
// explicitly set flag always wins; otherwise file values are kept, with
// flag defaults filling whatever the file left unspecified.
func resolveConfig(cmd *cobra.Command, opts *cliOptions) (config.Config, error) {
	var cfg config.Config
	fromFile := opts.configPath != ""
	if fromFile {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", opts.configPath, err)
		}
	}

	set := cmd.Flags().Changed
	if set("addr") || cfg.Addr == "" {
		cfg.Addr = opts.addr
	}
	if set("kernel-url") || cfg.KernelURL == "" {
		cfg.KernelURL = opts.kernelURL
	}
	if set("kernel-token") || cfg.KernelToken == "" {
		cfg.KernelToken = opts.kernelToken
	}
	if set("session-name") || cfg.SessionName == "" {
		cfg.SessionName = opts.sessionName
	}
	if set("state-file") || (!fromFile && cfg.StateFile == "") {
		cfg.StateFile = opts.stateFile
	}
	// Zero is meaningful for the interval and timeouts, so a file value is
	// only overridden by an explicit flag.
	if set("autosave-seconds") || !fromFile {
		cfg.AutosaveSeconds = opts.autosaveSeconds
	}
	if set("kernel-wait-timeout-seconds") || !fromFile {
		cfg.KernelWaitTimeoutSeconds = opts.kernelWaitTimeoutSeconds
	}
	if set("state-request-timeout-seconds") || !fromFile {
		cfg.StateRequestTimeoutSeconds = opts.stateRequestTimeoutSeconds
	}
	if set("drop-defaults") || !fromFile {
		cfg.DropDefaults = opts.dropDefaults
	}
	if set("cors-origins") || len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = splitCSV(opts.corsOrigins)
	}
	if set("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = opts.logLevel
	}

	if cfg.KernelURL == "" {
		return cfg, fmt.Errorf("kernel-url is required (ws://host:port/api/kernels/<id>/channels)")
	}
	return cfg, nil
}

func run(cfg config.Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := jupyter.New(jupyter.Config{
		URL:         cfg.KernelURL,
		Token:       cfg.KernelToken,
		SessionName: cfg.SessionName,
		Logger:      &log,
	})
	if err != nil {
		return fmt.Errorf("kernel client: %w", err)
	}
	client.Start(ctx)
	defer client.Close()

	classes := classload.NewRegistry()
	host := document.NewHost(log)

	mgr, err := widgets.New(ctx, widgets.ManagerConfig{
		Source:              jupyter.NewKernelAdapter(client),
		Classes:             classes,
		Host:                host,
		KernelWaitTimeout:   time.Duration(cfg.KernelWaitTimeoutSeconds) * time.Second,
		StateRequestTimeout: time.Duration(cfg.StateRequestTimeoutSeconds) * time.Second,
		Publisher:           logPublisher{log: log},
		Logger:              &log,
	})
	if err != nil {
		return fmt.Errorf("widget manager: %w", err)
	}
	defer mgr.Close()

	preg := persist.NewRegistry(log)
	defer preg.Close()
	preg.Register("document", mgr, host)

	if cfg.StateFile != "" {
		fs, err := store.NewFileStore(cfg.StateFile, log)
		if err != nil {
			return fmt.Errorf("state store: %w", err)
		}
		preg.SetCallbacks(ctx, fs.Load, fs.Save, types.GetStateOptions{DropDefaults: cfg.DropDefaults})
		log.Info().Str("path", fs.Path()).Msg("state persistence enabled")
	}
	host.StartAutosave(ctx, time.Duration(cfg.AutosaveSeconds)*time.Second)

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins, nil, nil)
	}
	svc := &service{mgr: mgr, client: client, persist: preg, host: host}
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(svc)}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("kernel", cfg.KernelURL).Msg("widgetd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := preg.SaveAll(saveCtx); err != nil {
		log.Error().Err(err).Msg("final save failed")
	}
	saveCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
