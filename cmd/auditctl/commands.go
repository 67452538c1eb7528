package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func connect() (*gorm.DB, error) {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized; set DB_* env vars")
	}
	return db, nil
}

func migrateCommand() *cobra.Command {
	var (
		tenants    []string
		sharedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the shared catalogue and tenant tables",
		Long: `Create or upgrade the shared catalogue tables, then every table of each
given tenant. Sequence counters are seeded from existing rows, so the command
is safe to rerun.

Examples:
  auditctl migrate --tenant ACME
  auditctl migrate --tenant ACME --tenant GLOBEX
  auditctl migrate --shared-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !sharedOnly && len(tenants) == 0 {
				return fmt.Errorf("must specify --tenant or --shared-only")
			}
			// resolve everything before touching the database
			namespaces := make([]tenant.Namespace, 0, len(tenants))
			for _, code := range tenants {
				ns, err := tenant.Resolve(strings.TrimSpace(code))
				if err != nil {
					return err
				}
				namespaces = append(namespaces, ns)
			}

			db, err := connect()
			if err != nil {
				return err
			}
			logger := config.GetLogger()
			if err := models.MigrateShared(db); err != nil {
				return fmt.Errorf("migrate shared tables: %w", err)
			}
			logger.WithFields(logrus.Fields{"field": "migrate"}).Info("shared tables ready")

			for _, ns := range namespaces {
				if err := models.MigrateTenant(db, ns); err != nil {
					return fmt.Errorf("migrate tenant %s: %w", ns.Code(), err)
				}
				logger.WithFields(logrus.Fields{"field": "migrate", "tenant": ns.Code()}).Info("tenant tables ready")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&tenants, "tenant", nil, "Tenant code to provision (repeatable)")
	cmd.Flags().BoolVar(&sharedOnly, "shared-only", false, "Only migrate the shared catalogue tables")
	cmd.MarkFlagsMutuallyExclusive("tenant", "shared-only")
	return cmd
}

// catalogueFile is the seed document format.
type catalogueFile struct {
	Standards           []models.NewStandard          `json:"standards"`
	CertificationBodies []models.NewCertificationBody `json:"certification_bodies"`
}

func seedCatalogueCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-catalogue",
		Short: "Insert standards, clauses and certification bodies from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var catalogue catalogueFile
			if err := json.Unmarshal(raw, &catalogue); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			for i := range catalogue.Standards {
				if err := utils.ValidateInput(&catalogue.Standards[i]); err != nil {
					return fmt.Errorf("standard %d: %w", i, err)
				}
			}
			for i := range catalogue.CertificationBodies {
				if err := utils.ValidateInput(&catalogue.CertificationBodies[i]); err != nil {
					return fmt.Errorf("certification body %d: %w", i, err)
				}
			}

			db, err := connect()
			if err != nil {
				return err
			}
			ctx := context.Background()
			config.ConnectRedisWithRetry(ctx)
			if err := models.MigrateShared(db); err != nil {
				return err
			}
			if err := models.SeedCatalogue(ctx, db, catalogue.Standards, catalogue.CertificationBodies); err != nil {
				return err
			}
			config.GetLogger().WithFields(logrus.Fields{
				"field":     "seed-catalogue",
				"standards": len(catalogue.Standards),
				"bodies":    len(catalogue.CertificationBodies),
			}).Info("catalogue seeded")
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to the catalogue JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// tokenCommand mints a development token signed with API_SECRET.
func tokenCommand() *cobra.Command {
	var (
		tenantCode  string
		userId      int
		name        string
		permissions []string
		lifespan    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Long: `Mint a development bearer token. Permissions are module=action pairs.

Example:
  auditctl token --tenant ACME --user-id 1 --name "Dev User" \
    --permission "Audit Plan=view" --permission "Audit Plan=approve"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := tenant.Resolve(tenantCode); err != nil {
				return err
			}
			granted := make(map[string][]string)
			for _, p := range permissions {
				module, action, ok := strings.Cut(p, "=")
				if !ok || module == "" || action == "" {
					return fmt.Errorf("invalid permission %q, expected module=action", p)
				}
				granted[module] = append(granted[module], action)
			}
			token, err := utils.JwtGenerate(utils.JwtCustomClaim{
				ID:          userId,
				Name:        name,
				TenantCode:  tenantCode,
				Permissions: granted,
			}, lifespan)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantCode, "tenant", "", "Tenant code")
	cmd.Flags().IntVar(&userId, "user-id", 0, "Actor id")
	cmd.Flags().StringVar(&name, "name", "", "Actor display name")
	cmd.Flags().StringArrayVar(&permissions, "permission", nil, "module=action (repeatable)")
	cmd.Flags().DurationVar(&lifespan, "ttl", 24*time.Hour, "Token lifespan")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
