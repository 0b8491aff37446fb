package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title Campus Course API
// @version 1.0.0
// @description Cross-campus course listing and enrollment. Each node owns one campus shard and federates the others.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var rootCmd = &cobra.Command{
	Use:   "campus-api",
	Short: "Campus course node: shard router and query federation",
	Long: `campus-api serves one campus of the course system. Course and user ids
encode the owning campus, so requests touching another campus are delegated
to its node over the private API, and listings fan out to every campus asked for.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, classifyCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
