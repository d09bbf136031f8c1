package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-studio/internal/httpapi"
	"github.com/ironsheep/image-studio/internal/server"
	"github.com/ironsheep/image-studio/internal/studio"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdin/stdout",
	Long: `Serve the image tools with the Model Context Protocol. Requests are read
one per line from stdin and responses written to stdout; logs go to stderr.
Configure it as a stdio server in your MCP client.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStudio(cmd, func(ctx context.Context, st *studio.Studio, log logrus.FieldLogger) error {
			return server.New(st, log).Run(ctx)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStudio(cmd, func(ctx context.Context, st *studio.Studio, log logrus.FieldLogger) error {
			cfg := st.Config().HTTP
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}
			return httpapi.New(st, cfg, log).Run(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, overrides http.addr")
	rootCmd.AddCommand(mcpCmd, serveCmd)
}
