package main

import (
	"context"
	"os/signal"
	"syscall"

	"facegate/internal/app"
	"facegate/internal/core/recognition"
	"facegate/internal/integrations/opencv"
	"facegate/internal/overlay"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var autoStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the recognition loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoStart, "autostart", false, "Start recognition immediately")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	a, cleanup, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	server, err := a.NewServer(app.ServeOptions{
		Camera: opencv.NewCamera(a.Config.Camera.Device),
		OpenCVRenderer: func(b *overlay.Buffer) recognition.Renderer {
			return opencv.NewRenderer(b)
		},
		ConfigPath: configPath,
		AutoStart:  autoStart,
		Ready: func(addr string) {
			log.Infof("facegate ready, dashboard API on http://%s/api/status", addr)
		},
	})
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
