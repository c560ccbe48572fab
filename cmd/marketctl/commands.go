package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/api"
	"github.com/tendant/simple-marketplace/pkg/marketplace/config"
	"github.com/tendant/simple-marketplace/pkg/marketplace/entities"
	repopg "github.com/tendant/simple-marketplace/pkg/marketplace/repo/postgres"
)

func commandLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// newService builds the entity service from the environment.
func newService(cmd *cobra.Command) (marketplace.Service, func(), error) {
	prefix, _ := cmd.Flags().GetString("env-prefix")
	cfg, err := config.Load(config.WithEnv(prefix))
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg.BuildService(cmd.Context(), commandLogger(cmd))
}

func lookupEntity(route string) (*marketplace.Schema, error) {
	schema, ok := entities.Lookup(route)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q (see 'marketctl entities')", route)
	}
	return schema, nil
}

func NewMigrateCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" || databaseURL == "memory" {
				return errors.New("a postgres database URL is required (--database-url or DATABASE_URL)")
			}
			if err := config.PingPostgres(cmd.Context(), databaseURL); err != nil {
				return err
			}
			if err := repopg.Migrate(databaseURL, commandLogger(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string")
	return cmd
}

func NewEntitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List marketplace entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROUTE\tTABLE\tMODERATED\tFIELDS")
			for _, s := range entities.Catalogue() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\n", s.Route, s.Table, s.Moderated, len(s.Fields))
			}
			return w.Flush()
		},
	}
}

func NewTemplateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "template <entity>",
		Short: "Print the CSV import template of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := lookupEntity(args[0])
			if err != nil {
				return err
			}
			svc, closeFn, err := newService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return svc.WriteTemplate(schema, cmd.OutOrStdout())
		},
	}
}

func NewImportCommand() *cobra.Command {
	var adminID string

	cmd := &cobra.Command{
		Use:   "import <entity> <file.csv>",
		Short: "Import entity records from a CSV file",
		Long: `Import entity records from a CSV file.

Rows are imported as the given admin, so moderated records are created
approved. Invalid rows are reported and skipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := lookupEntity(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()

			svc, closeFn, err := newService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.ImportCSV(cmd.Context(), schema, f, marketplace.Actor{AdminID: adminID})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created %d %s record(s)\n", res.Created, schema.Name)
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&adminID, "admin-id", "marketctl", "admin identity recorded on imported rows")
	return cmd
}

func NewExportCommand() *cobra.Command {
	var output string
	var search string
	var includeInactive bool

	cmd := &cobra.Command{
		Use:   "export <entity>",
		Short: "Export entity records as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := lookupEntity(args[0])
			if err != nil {
				return err
			}
			svc, closeFn, err := newService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			return svc.ExportCSV(cmd.Context(), schema, marketplace.ListRequest{
				Search:          search,
				IncludeInactive: includeInactive,
			}, w)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&search, "search", "", "only export records matching the search term")
	cmd.Flags().BoolVar(&includeInactive, "include-inactive", false, "include soft deleted records")
	return cmd
}

func NewTokenCommand() *cobra.Command {
	var userID, adminID, email, permissions string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("env-prefix")
			secret := os.Getenv(prefix + "JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("%sJWT_SECRET is not set", prefix)
			}
			if userID == "" && adminID == "" {
				return errors.New("one of --user-id or --admin-id is required")
			}

			actor := marketplace.Actor{UserID: userID, AdminID: adminID, Email: email}
			if permissions != "" {
				for _, p := range strings.Split(permissions, ",") {
					if p = strings.TrimSpace(p); p != "" {
						actor.Permissions = append(actor.Permissions, p)
					}
				}
			}

			token, err := api.IssueToken(api.NewAuth(secret), actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "user id (sub claim)")
	cmd.Flags().StringVar(&adminID, "admin-id", "", "admin id (sub claim with admin role)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&permissions, "permissions", "", "comma separated permissions")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
