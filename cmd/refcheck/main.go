package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "refcheck",
		Short:        "Reference check backend",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), remindCmd(), migrateCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
