// auditctl provisions tenants and the shared catalogue.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/auditctl migrate --tenant ACME
//	go run ./cmd/auditctl seed-catalogue --file catalogue.json
//	go run ./cmd/auditctl token --tenant ACME --user-id 1 --name "Dev User"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "auditctl",
		Short:         "Compliance audit backend operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCommand(), seedCatalogueCommand(), tokenCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
