// Package main provides the mediachat CLI entry point.
// mediachat is a chat client that answers with text, images or video.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mediachat/internal/config"
	"mediachat/internal/logger"
	"mediachat/internal/server"
	"mediachat/internal/shell"
	"mediachat/internal/version"
)

var (
	logLevel    string
	logFile     string
	testMode    bool
	configFile  string
	historyFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mediachat",
	Short: "mediachat - chat that answers with text, images or video",
	Long: `mediachat routes each message to a text, image or video generation backend.
Start a message with "/image" or "generate image of" for pictures and with
"/video" or "generate video of" for clips; anything else is a chat message.`,
	RunE: runChat, // Default behavior is the interactive client
}

// chatCmd is the explicit form of the default behavior
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive terminal client",
	RunE:  runChat,
}

// serveCmd runs the HTTP rendering API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation API over HTTP",
	Long: `Serve conversations over HTTP for a browser front end.
State changes are pushed on /api/events as server-sent events.`,
	RunE: runServe,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		detailed, _ := cmd.Flags().GetBool("detailed")
		if detailed {
			fmt.Println(version.GetDetailedVersion())
			return
		}
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file [default: $XDG_CONFIG_HOME/mediachat/config.yaml]")

	for _, name := range []string{"log-level", "log-file", "test-mode"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}

	chatFlags := []*cobra.Command{rootCmd, chatCmd}
	for _, cmd := range chatFlags {
		cmd.Flags().StringVar(&historyFile, "history-file", "", "Input history file [default: <config dir>/history]")
	}

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	if err := viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding addr flag: %v\n", err)
		os.Exit(1)
	}

	versionCmd.Flags().Bool("detailed", false, "Show detailed build information")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	// Configure logger before any command execution
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, config.Paths, error) {
	return config.Load(viper.GetViper(), config.Options{ConfigFile: configFile})
}

func runChat(_ *cobra.Command, _ []string) error {
	defer func() { _ = logger.Close() }()
	logger.Info("Starting mediachat", "version", version.Version)

	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}

	if historyFile == "" && paths.ConfigDir != "" {
		if err := os.MkdirAll(paths.ConfigDir, 0o755); err == nil {
			historyFile = filepath.Join(paths.ConfigDir, "history")
		}
	}
	rl, err := shell.NewReadline(historyFile)
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()

	ctx := context.Background()
	application, err := buildApp(ctx, cfg, paths, appOptions{
		Prompt:     rl,
		PreferDisk: true,
		TestMode:   testMode,
	})
	if err != nil {
		return err
	}
	defer func() { _ = application.Close(ctx) }()

	fmt.Fprintln(rl.Stdout(), version.GetFormattedVersion())
	sh := shell.New(application.registry, rl, shell.Options{
		Out:               rl.Stdout(),
		Renderer:          shell.NewTerminalRenderer(shell.TerminalWidth()),
		CancelOnInterrupt: true,
	})
	return sh.Run(ctx)
}

func runServe(_ *cobra.Command, _ []string) error {
	defer func() { _ = logger.Close() }()
	logger.Info("Starting mediachat server", "version", version.Version)

	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := buildApp(ctx, cfg, paths, appOptions{TestMode: testMode})
	if err != nil {
		return err
	}
	defer func() { _ = application.Close(context.Background()) }()

	srv := server.New(application.registry, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Assets:         application.assets,
	})
	return srv.Run(ctx, cfg.Server.Addr)
}
