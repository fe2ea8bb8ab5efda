// Command crm runs the lead-lifecycle API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "crm-leads-bfa"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "crm",
		Short:         "Lead lifecycle engine for the sales CRM",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crm:", err)
		os.Exit(1)
	}
}
