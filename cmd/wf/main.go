package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"welfareflow/internal/app"
	"welfareflow/internal/config"
	"welfareflow/internal/db"
	"welfareflow/internal/domain"
	"welfareflow/internal/engine"
	"welfareflow/internal/export"
	"welfareflow/internal/history"
	"welfareflow/internal/listing"
	"welfareflow/internal/logger"
	"welfareflow/internal/migrate"
	"welfareflow/internal/officer"
	"welfareflow/internal/repo"
	"welfareflow/internal/server"
	"welfareflow/internal/validation"
)

var rootCmd = &cobra.Command{
	Use:   "wf",
	Short: "Welfareflow CLI",
	Long: `Welfareflow runs the application workflow for welfare schemes.
- Services: each scheme owns an ordered chain of officer steps (TSWO -> DSWO -> JD ...) with per-step permissions.
- Applications: citizens submit a form; the first officer in their area receives it.
- Actions: Forward, Return, ReturnToCitizen, Reject, Sanction, Pull and Shift move the application along the chain.
- History: every action appends an audit row; view it with 'wf app history'.
- Pool: officers may park pending applications aside without acting on them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WELFAREFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("officer", "", "username to act as")
	rootCmd.PersistentFlags().String("db-driver", "", "database driver (sqlite or postgres), overrides config")
	rootCmd.PersistentFlags().String("db-dsn", "", "database DSN, overrides config")
	rootCmd.PersistentFlags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("officer", rootCmd.PersistentFlags().Lookup("officer"))
	_ = viper.BindPFlag("db-driver", rootCmd.PersistentFlags().Lookup("db-driver"))
	_ = viper.BindPFlag("db-dsn", rootCmd.PersistentFlags().Lookup("db-dsn"))
	_ = viper.BindPFlag("jwt-secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(officerCmd())
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(poolCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(validateCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				secret := viper.GetString("jwt-secret")
				if secret == "" {
					return fmt.Errorf("WELFAREFLOW_JWT_SECRET is required for bearer auth")
				}
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:    e,
					BasePath:  basePath,
					Auth:      server.AuthConfig{JWTSecret: secret, AllowLegacyOfficerHeader: legacyHeader, Logger: e.Logger},
					Logger:    e.Logger,
					RateLimit: server.RateLimitConfig{Requests: cfg.Server.RateLimit.Requests, Window: cfg.RateWindow()},
					Uploads:   server.UploadLimits{MaxBytes: cfg.Uploads.MaxBytes, AllowedTypes: cfg.Uploads.AllowedTypes},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				e.Logger.Info("serving welfareflow api", "addr", addr, "base_path", basePath)
				fmt.Printf("Serving Welfareflow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().BoolVar(&legacyHeader, "allow-legacy-officer-header", false, "accept X-Officer without credentials (development only)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed reference data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				fmt.Println("database up to date")
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manage services, areas and officers",
	}
	c.AddCommand(configInitCmd())
	c.AddCommand(configShowCmd())
	c.AddCommand(configImportCmd())
	return c
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the sample welfareflow.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show services stored in the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				services, err := e.Repo.ListServices(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(services)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Service", "Name", "Step", "Designation", "Level", "Forward", "Return", "To Citizen", "Pull", "Sanction"})
				for _, s := range services {
					for _, p := range s.Steps {
						tw.AppendRow(table.Row{s.ServiceID, s.Name, p.PlayerID, p.Designation, p.AccessLevel,
							p.CanForwardToPlayer, p.CanReturnToPlayer, p.CanReturnToCitizen, p.CanPull, p.CanSanction})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import services, areas, officers and banks from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			imported, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				if err := app.Seed(ctx, e.Repo, imported); err != nil {
					return err
				}
				e.Areas.Invalidate()
				fmt.Printf("imported %d services, %d districts, %d tehsils, %d officers\n",
					len(imported.Services), len(imported.Areas.Districts), len(imported.Areas.Tehsils), len(imported.Officers))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tokenCmd() *cobra.Command {
	var username string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				if _, err := (officer.Directory{Store: e.Repo}).Lookup(ctx, username); err != nil {
					return fmt.Errorf("user %q: %w", username, err)
				}
				tok, err := server.SignToken(viper.GetString("jwt-secret"), username, ttl)
				if err != nil {
					return err
				}
				fmt.Println(tok)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an API key; the key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				if _, err := (officer.Directory{Store: e.Repo}).Lookup(ctx, args[0]); err != nil {
					return fmt.Errorf("user %q: %w", args[0], err)
				}
				key, secret := server.NewAPIKey(args[0], name)
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "key": secret})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")

	list := &cobra.Command{
		Use:   "list [username]",
		Short: "List API keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				username := ""
				if len(args) == 1 {
					username = args[0]
				}
				keys, err := e.Repo.ListAPIKeys(ctx, username)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Username", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Username, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, revoke)
	return c
}

func officerCmd() *cobra.Command {
	c := &cobra.Command{Use: "officer", Short: "Inspect the officer directory"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List officers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				officers, err := e.Repo.ListOfficers(ctx)
				if err != nil {
					return err
				}
				tables, err := e.Areas.Tables(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(officers)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Username", "Name", "Designation", "Level", "Area", "Type"})
				for _, o := range officers {
					tw.AppendRow(table.Row{o.Username, o.Name, o.Role, o.AccessLevel, tables.Name(o.AccessLevel, o.AccessCode), o.UserType})
				}
				tw.Render()
				return nil
			})
		},
	})
	return c
}

func appCmd() *cobra.Command {
	c := &cobra.Command{Use: "app", Short: "Work with citizen applications"}
	c.AddCommand(appSubmitCmd())
	c.AddCommand(appShowCmd())
	c.AddCommand(appActionCmd())
	c.AddCommand(appResubmitCmd())
	c.AddCommand(appHistoryCmd())
	c.AddCommand(appListCmd())
	c.AddCommand(appCountsCmd())
	return c
}

func appSubmitCmd() *cobra.Command {
	var serviceID int
	var ref, formPath, remarks string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an application from a form JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(formPath)
			if err != nil {
				return err
			}
			form, err := domain.ParseFormDetails(string(data))
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				a, err := e.Submit(ctx, engine.SubmitRequest{ServiceID: serviceID, ReferenceNumber: ref, FormDetails: form, Remarks: remarks, SubmittedBy: viper.GetString("officer")})
				if err != nil {
					return err
				}
				return printApplication(a)
			})
		},
	}
	cmd.Flags().IntVar(&serviceID, "service", 1, "service id")
	cmd.Flags().StringVar(&ref, "ref", "", "reference number (generated when empty)")
	cmd.Flags().StringVar(&formPath, "form", "", "path to form details JSON")
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks")
	_ = cmd.MarkFlagRequired("form")
	return cmd
}

func appShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <ref>",
		Short: "Show an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				a, err := e.Repo.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				return printApplication(a)
			})
		},
	}
}

func appActionCmd() *cobra.Command {
	var action, remarks, document string
	var editable []string
	var target int
	cmd := &cobra.Command{
		Use:   "action <ref>",
		Short: "Take a workflow action as --officer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				o, err := actingOfficer(ctx, e)
				if err != nil {
					return err
				}
				res, err := e.HandleAction(ctx, engine.ActionRequest{
					ReferenceNumber: args[0],
					Officer:         o,
					Action:          action,
					Remarks:         remarks,
					Details: engine.AdditionalDetails{
						EditableFields:     editable,
						SignedDocumentPath: document,
						TargetAccessCode:   target,
					},
				})
				if err != nil {
					if viper.GetBool("json") {
						_ = printJSON(map[string]any{"status": false, "response": err.Error()})
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"status": true, "response": res.Message})
				}
				fmt.Println(res.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "Forward, Return, ReturnToCitizen, Reject, Sanction, Pull or Shift")
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks")
	cmd.Flags().StringSliceVar(&editable, "editable", nil, "fields the citizen may correct (ReturnToCitizen)")
	cmd.Flags().StringVar(&document, "document", "", "signed sanction document path (Sanction)")
	cmd.Flags().IntVar(&target, "target", 0, "target access code (Shift)")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func appResubmitCmd() *cobra.Command {
	var set []string
	var remarks string
	cmd := &cobra.Command{
		Use:   "resubmit <ref>",
		Short: "Resubmit corrected fields as the applicant named by --officer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]any{}
			for _, kv := range set {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("--set expects name=value, got %q", kv)
				}
				fields[strings.TrimSpace(k)] = v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				a, err := e.Resubmit(ctx, engine.ResubmitRequest{ReferenceNumber: args[0], Fields: fields, Remarks: remarks, Citizen: viper.GetString("officer")})
				if err != nil {
					return err
				}
				return printApplication(a)
			})
		},
	}
	cmd.Flags().StringArrayVar(&set, "set", nil, "corrected field as name=value (repeatable)")
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks")
	return cmd
}

func appHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <ref>",
		Short: "Show the action history of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				res, err := (history.Service{Repo: e.Repo, Areas: e.Areas}).GetHistory(ctx, history.Request{ReferenceNumber: args[0]})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Action Taker", "Action", "Remarks", "On"})
				for _, r := range res.Data {
					tw.AppendRow(table.Row{r["sno"], r["actionTaker"], r["actionTaken"], r["remarks"], r["actionTakenOn"]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func listingFlags(cmd *cobra.Command, req *listing.Request) {
	cmd.Flags().IntVar(&req.ServiceID, "service", 1, "service id")
	cmd.Flags().StringVar(&req.StatusFilter, "status", "", "status filter")
	cmd.Flags().StringVar(&req.DataType, "data-type", "", "all, data or pool")
	cmd.Flags().StringVar(&req.Scope, "scope", "", "InView to page the result")
	cmd.Flags().IntVar(&req.PageIndex, "page", 0, "zero-based page (InView)")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 0, "page size (InView)")
}

func appListCmd() *cobra.Command {
	var req listing.Request
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications for --officer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				o, err := actingOfficer(ctx, e)
				if err != nil {
					return err
				}
				res, err := (listing.Service{Repo: e.Repo}).ListApplications(ctx, o, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Reference", "Applicant", "Status", "Submitted", "Last Action", "Pool"})
				for _, r := range res.Data {
					tw.AppendRow(table.Row{r["sno"], r["referenceNumber"], r["applicantName"], r["status"], r["submissionDate"], r["actionTakenOn"], ""})
				}
				for _, r := range res.PoolData {
					tw.AppendRow(table.Row{r["sno"], r["referenceNumber"], r["applicantName"], r["status"], r["submissionDate"], r["actionTakenOn"], "yes"})
				}
				tw.Render()
				return nil
			})
		},
	}
	listingFlags(cmd, &req)
	return cmd
}

func appCountsCmd() *cobra.Command {
	var serviceID int
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Per-status application counts for --officer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				o, err := actingOfficer(ctx, e)
				if err != nil {
					return err
				}
				counts, err := (listing.Service{Repo: e.Repo}).Counts(ctx, o, serviceID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Status", "Count"})
				for _, st := range domain.Statuses {
					tw.AppendRow(table.Row{st, counts[st]})
				}
				tw.AppendFooter(table.Row{"total", counts["total"]})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&serviceID, "service", 1, "service id")
	return cmd
}

func poolCmd() *cobra.Command {
	var serviceID int
	c := &cobra.Command{Use: "pool", Short: "Park pending applications aside for --officer"}
	c.PersistentFlags().IntVar(&serviceID, "service", 1, "service id")
	c.AddCommand(&cobra.Command{
		Use:   "add <ref>",
		Short: "Move an application into the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				o, err := actingOfficer(ctx, e)
				if err != nil {
					return err
				}
				return e.AddToPool(ctx, o, serviceID, args[0])
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "remove <ref>",
		Short: "Return an application to the main list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				o, err := actingOfficer(ctx, e)
				if err != nil {
					return err
				}
				return e.RemoveFromPool(ctx, o, serviceID, args[0])
			})
		},
	})
	return c
}

func exportCmd() *cobra.Command {
	var req export.Request
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the listing of --officer as csv, excel or pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				o, err := actingOfficer(ctx, e)
				if err != nil {
					return err
				}
				svc := export.Service{Listing: listing.Service{Repo: e.Repo}}
				rep, err := svc.Export(ctx, o, req)
				if err != nil {
					return err
				}
				if out == "" {
					out = rep.Filename
				}
				if err := os.WriteFile(out, rep.Body, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s (%d bytes)\n", out, len(rep.Body))
				return nil
			})
		},
	}
	listingFlags(cmd, &req.Request)
	cmd.Flags().StringVar(&req.Format, "format", export.FormatCSV, "csv, excel or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default Report_{scope}_{timestamp}.{ext})")
	return cmd
}

func validateCmd() *cobra.Command {
	var in validation.Input
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate <kind> [value]",
		Short: "Run a field validator: " + strings.Join(validation.Kinds, ", "),
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				in.Value = args[1]
			}
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				in.Content = data
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				svc := validation.Service{Store: e.Repo, MaxBytes: cfg.Uploads.MaxBytes, AllowedTypes: cfg.Uploads.AllowedTypes}
				res, err := svc.Validate(ctx, args[0], in)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&in.ReferenceNumber, "ref", "", "application excluded from duplicate checks")
	cmd.Flags().StringVar(&filePath, "file", "", "file to check (file-signature)")
	return cmd
}

// --- helpers ---

// effectiveConfig reads welfareflow.yml when present and applies CLI/env overrides.
func effectiveConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if d := viper.GetString("db-driver"); d != "" {
		cfg.Database.Driver = d
	}
	if dsn := viper.GetString("db-dsn"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	return cfg, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, *config.Config) error) error {
	cfg, err := effectiveConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()
	dbCfg := db.Config{Workspace: viper.GetString("workspace"), Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn, dbCfg.Dialect()); err != nil {
		return err
	}
	e := engine.New(conn, dbCfg.Dialect(), cfg, log)
	if seeded, err := app.EnsureSeeded(ctx, e.Repo, cfg); err != nil {
		return err
	} else if seeded {
		log.Info("seeded reference data", "services", len(cfg.Services))
	}
	return fn(ctx, e, cfg)
}

func actingOfficer(ctx context.Context, e engine.Engine) (domain.Officer, error) {
	username := viper.GetString("officer")
	o, err := (officer.Directory{Store: e.Repo}).Lookup(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Officer{}, fmt.Errorf("unknown officer %q; pass --officer or set WELFAREFLOW_OFFICER", username)
	}
	if err != nil {
		return domain.Officer{}, err
	}
	return o, officer.RequireOfficer(o)
}

func printApplication(a domain.CitizenApplication) error {
	if viper.GetBool("json") {
		return printJSON(a)
	}
	fmt.Printf("Reference: %s\nApplicant: %s\nService:   %d\nStatus:    %s\n", a.ReferenceNumber, a.ApplicantName, a.ServiceID, a.Status)
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "Designation", "Level", "Code", "Status", ""})
	for _, p := range a.WorkFlow {
		marker := ""
		if p.PlayerID == a.CurrentPlayer {
			marker = "current"
		}
		tw.AppendRow(table.Row{p.PlayerID, p.Designation, p.AccessLevel, p.AccessCode, p.Status, marker})
	}
	tw.Render()
	return nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
