package main

import (
	"github.com/spf13/cobra"

	server "imghost/src/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, log, err := setup()
		if err != nil {
			return err
		}
		return server.RunServer(cmd.Context(), config, log)
	},
}
