// Command gatectl is the operator tool for guildgate: it migrates the store,
// promotes admins, manages the item catalog and works the review queues
// from a terminal.
//
// Every review goes through the same services the HTTP API uses, so the
// acting admin is named with --as and checked like any other viewer.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gatectl",
		Short:         "gatectl - operator tool for the guildgate store and review queues",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(promoteCmd())
	rootCmd.AddCommand(itemsCmd())
	rootCmd.AddCommand(activationsCmd())
	rootCmd.AddCommand(paymentsCmd())

	return rootCmd
}
