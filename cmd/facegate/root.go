package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"facegate/config"
	"facegate/internal/app"
	"facegate/internal/integrations/dlib"
	"facegate/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Live face recognition against a gallery of registered identities",
	Long: `facegate watches a camera, detects faces in every frame, matches them
against a gallery of registered identities and reports who it sees over
HTTP, server-sent events and MQTT.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to the YAML config file")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// setup loads the configuration and initializes logging
func setup() (*config.Config, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	closer, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, closer, nil
}

// openApp loads config, logging, database and gallery with the dlib provider
func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, closer, err := setup()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, dlib.NewService(cfg.Model.Dlib.ModelDir))
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		closer.Close()
	}, nil
}
