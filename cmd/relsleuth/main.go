package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/finchlyline/relsleuth/internal/analyze"
	"github.com/finchlyline/relsleuth/internal/log"
	"github.com/finchlyline/relsleuth/internal/model"
	"github.com/finchlyline/relsleuth/internal/resolver"
	"github.com/finchlyline/relsleuth/internal/rest"
	"github.com/finchlyline/relsleuth/internal/status"
)

var (
	userConfigPath string // /default/config/path/relsleuth on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "relsleuth")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is relsleuth.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse config, setup logging
	rootCmd.PersistentPreRunE = initConfig

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("relsleuth failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "relsleuth",
	Short:        "Service resolving which upstream builds produced the contents of deliverable archives",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve runs the analysis orchestrator HTTP service",
	RunE:  doServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of relsleuth",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("relsleuth: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("relsleuth: %s\n", info.Main.Version)
		fmt.Printf("go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("relsleuth",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	ttl, err := config.StatusTTL()
	if err != nil {
		return err
	}
	timeout, err := config.ResolverTimeout()
	if err != nil {
		return err
	}

	client, err := resolver.NewClient(config.Resolver.URL, timeout)
	if err != nil {
		return fmt.Errorf("initializing resolver client: %w", err)
	}

	store := status.New(status.WithTTL(ttl))
	manager := analyze.NewManager(store, client, analyze.NewNotifier())
	defer manager.Shutdown()

	handler := rest.NewRouter(manager, config.Server)
	return rest.Serve(ctx, config.Server.Listen, handler)
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("RELSLEUTHCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "relsleuth.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		return fmt.Errorf("no config file found, pass --config or put relsleuth.yaml in %s or the current directory", userConfigPath)
	}

	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	config, err = model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error(d)
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	slog.SetDefault(log.New(logWriter(config.Service.Log), config.Service.Verbose))

	slog.Debug("relsleuth run", "configPath", configPath)
	slog.Debug("relsleuth run", "config", config)
	return nil
}

func logWriter(dst string) io.Writer {
	switch dst {
	case model.LogStdout:
		return os.Stdout
	case model.LogDiscard:
		return io.Discard
	default:
		return os.Stderr
	}
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info != nil && info.Mode().IsRegular()
}
