package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-studio/internal/config"
	"github.com/ironsheep/image-studio/internal/logging"
	"github.com/ironsheep/image-studio/internal/server"
	"github.com/ironsheep/image-studio/internal/studio"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "image-studio",
	Short: "Image editing over MCP, HTTP and the command line",
	Long: `image-studio edits images through a registry of operations: geometry,
color adjustments, filters, retouching, text and layers. It serves the
operations as MCP tools over stdin/stdout, as an HTTP API, or runs them
directly from the command line.

Configuration comes from an optional YAML file (--config), a .env file in
the working directory and IMAGE_STUDIO_* environment variables.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("image-studio %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	server.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withStudio loads the configuration, builds the studio and hands it to fn.
// The studio is closed once fn returns.
func withStudio(cmd *cobra.Command, fn func(ctx context.Context, st *studio.Studio, log logrus.FieldLogger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log := logging.New(cfg.LogLevel)
	log.WithFields(logrus.Fields{"version": Version, "commit": GitCommit}).Debug("starting")

	ctx := cmd.Context()
	st, err := studio.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("studio setup failed")
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.WithError(err).Warn("studio shutdown")
		}
	}()

	if err := fn(ctx, st, log); err != nil {
		log.WithError(err).Error("command failed")
		return err
	}
	return nil
}
