package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/ltmsync/internal/bigip"
	"github.com/dokzlo13/ltmsync/internal/config"
	"github.com/dokzlo13/ltmsync/internal/declaration"
	"github.com/dokzlo13/ltmsync/internal/journal"
	"github.com/dokzlo13/ltmsync/internal/script"
	"github.com/dokzlo13/ltmsync/internal/watch"
)

var (
	configPath string
	declPath   string
)

var rootCmd = &cobra.Command{
	Use:   "ltmsync",
	Short: "Converge a load balancer's nodes and virtual servers to a declaration",
	Long: `ltmsync reads a declaration of nodes and virtual servers and drives a
load balancer's management API until the device matches it. Passes are
idempotent: a converged device takes no mutating calls.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&declPath, "file", "f", "declaration.yaml", "path to the declaration file (.yaml or .lua)")
}

// setup loads the configuration, initializes logging and builds the
// device client.
func setup() (*config.Config, bigip.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	client := bigip.NewRESTClient(bigip.RESTOptions{
		Host:               cfg.Device.Host,
		Username:           cfg.Device.Username,
		Password:           cfg.Device.Password,
		Timeout:            cfg.Device.Timeout.Duration(),
		InsecureSkipVerify: cfg.Device.InsecureSkipVerify,
	})
	return cfg, client, nil
}

// loadDeclaration reads and resolves the declaration file. Lua scripts
// are rendered, everything else parses as YAML.
func loadDeclaration(path string) (*declaration.Resolved, error) {
	var (
		doc *declaration.Document
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".lua") {
		doc, err = script.Render(path)
	} else {
		doc, err = declaration.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading declaration %s: %w", path, err)
	}
	return doc.Resolve()
}

// runPass executes one convergence pass and reports per-resource failures
// as a command error.
func runPass(ctx context.Context, dryRun bool) error {
	cfg, client, err := setup()
	if err != nil {
		return err
	}

	res, err := loadDeclaration(declPath)
	if err != nil {
		return err
	}

	jrnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	runner := watch.NewRunner(client, jrnl, watch.Options{
		RateLimitRPS: cfg.Watch.RateLimitRPS,
		DryRun:       dryRun,
	})

	summary, err := runner.Pass(ctx, res)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d resources failed to converge", summary.Failed, summary.Resources)
	}
	return nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
