package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/spinpanel/spinpanel/internal/config"
	"github.com/spinpanel/spinpanel/pkg/discovery"
	"github.com/spinpanel/spinpanel/pkg/panel"
	"github.com/spinpanel/spinpanel/pkg/relay"
	"github.com/spinpanel/spinpanel/pkg/sendspin"
	"github.com/spinpanel/spinpanel/pkg/ui"
)

func main() {
	var (
		configPath string
		flags      config.Config
	)

	cmd := &cobra.Command{
		Use:   "spinpanel",
		Short: "A terminal control panel for a sendspin multiroom audio server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, &cfg, flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "spinpanel.yaml", "Path to the yaml config file")
	cmd.Flags().StringVar(&flags.ServerID, "id", "", "Server id announced to clients")
	cmd.Flags().StringVar(&flags.ServerName, "name", "", "Server display name")
	cmd.Flags().IntVar(&flags.Port, "port", 0, "Websocket listen port, 0 picks one")
	cmd.Flags().BoolVar(&flags.EnableDiscovery, "discover", true, "Announce the server over mDNS")
	cmd.Flags().StringVar(&flags.LogFile, "log-file", "", "Path of the JSON debug log")
	cmd.Flags().StringVar(&flags.LogLevel, "log-level", "", "Log file level: debug, info, warn, error")

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

// applyFlagOverrides copies the flags the user actually set over the file
// values, so an untouched flag never clobbers the config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, flags config.Config) {
	if cmd.Flags().Changed("id") {
		cfg.ServerID = flags.ServerID
	}
	if cmd.Flags().Changed("name") {
		cfg.ServerName = flags.ServerName
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flags.Port
	}
	if cmd.Flags().Changed("discover") {
		cfg.EnableDiscovery = flags.EnableDiscovery
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = flags.LogFile
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
}

func run(cfg config.Config) error {
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}()

	fileLevel, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: fileLevel})

	r := relay.New()

	// The ring handler forwards library records into the event log panel.
	// Info-level domain lifecycle lines are written by the controller itself,
	// so only warnings and errors from inside the server are surfaced twice.
	var ctrl *panel.Controller
	ringHandler := panel.NewLogHandler(r, func(e panel.Entry) {
		if ctrl != nil {
			ctrl.Append(e)
		}
	}, slog.LevelWarn, fileHandler)
	logger := slog.New(ringHandler)
	slog.SetDefault(logger)

	ctrl = panel.NewController(panel.Options{
		NewServer: func(id, name string) panel.AudioServer {
			return sendspin.NewServer(sendspin.ServerConfig{
				ServerID:   id,
				ServerName: name,
				Discovery:  &discovery.MDNSAdapter{},
				Logger:     logger,
			})
		},
		Relay:  r,
		Logger: logger,
	})

	model := ui.InitialModel(ui.Options{
		Controller:      ctrl,
		Relay:           r,
		ServerID:        cfg.ServerID,
		ServerName:      cfg.ServerName,
		Port:            cfg.Port,
		EnableDiscovery: cfg.EnableDiscovery,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := p.Run()

	// The ctrl+c path already shut everything down; this covers a program
	// that ended any other way. All teardown steps tolerate repetition.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
	return runErr
}
