package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"formline/internal/config"
	"formline/internal/db"
	"formline/internal/domain"
	"formline/internal/engine"
	"formline/internal/form"
	"formline/internal/migrate"
	"formline/internal/repo"
	"formline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Formline CLI",
	Long: `Formline runs schema-driven inspection forms with conditional visibility,
scoring and section-by-section validation.
Core concepts:
- Workspace: your .formline directory with the database; presets and defaults live in formline.yml.
- Template: a versioned form definition (sections of typed items, conditionals, scoring rules).
- Inspection: one filling of a template; drafts advance section by section and pin the template
  version they started with, so later imports never change a running draft.
- Answers: each answer re-evaluates visibility (hidden answers are cleared) and the running score.
- Submit: validates everything visible; rejects position the draft at the first failing section,
  successes get a sequence number like INS-000042 and a pass/fail verdict.
- Assets and locations: registries that feed reference items their option lists.
- Event log: diary of changes, view with 'fl log tail'.`,
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
	viper.SetEnvPrefix("FORMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(locationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook (formline.yml): the passing score, the sequence prefix, and the option presets templates can reference by key.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default formline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{
		Use:   "template",
		Short: "Manage templates",
		Long:  "Templates are versioned form definitions. Importing the same id again stores a new version; running drafts keep the version they pinned at start.",
	}
	tpl.AddCommand(templateImportCmd())
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(templateShowCmd())
	tpl.AddCommand(templateValidateCmd())
	tpl.AddCommand(templateArchiveCmd())
	return tpl
}

func templateImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a template from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.ImportTemplate(ctx, data, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to template JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func templateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTemplates(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Version", "Name", "Status", "Updated"})
				for _, rec := range items {
					tw.AppendRow(table.Row{rec.ID, rec.Version, rec.Name, rec.Status, rec.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func templateShowCmd() *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var rec domain.TemplateRecord
				var err error
				if version != "" {
					rec, err = e.Repo.GetTemplate(ctx, id, version)
				} else {
					rec, err = e.Repo.LatestTemplate(ctx, id)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "template version (defaults to latest active)")
	return cmd
}

func templateValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a template file without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			tmpl, err := form.ParseTemplate(data)
			if err == nil {
				err = form.ValidateTemplate(tmpl)
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"valid": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("template OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to template JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func templateArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.ArchiveTemplate(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func inspectCmd() *cobra.Command {
	insp := &cobra.Command{
		Use:   "inspect",
		Short: "Run inspections",
		Long:  "Inspections are drafts filled one section at a time. Answers re-evaluate visibility and score; submit validates everything and assigns the sequence number.",
	}
	insp.AddCommand(inspectStartCmd())
	insp.AddCommand(inspectListCmd())
	insp.AddCommand(inspectShowCmd())
	insp.AddCommand(inspectAnswerCmd())
	insp.AddCommand(inspectNextCmd())
	insp.AddCommand(inspectPrevCmd())
	insp.AddCommand(inspectSubmitCmd())
	return insp
}

func inspectStartCmd() *cobra.Command {
	var templateID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an inspection (or resume your open draft)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.StartInspection(ctx, templateID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "template id")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func inspectListCmd() *cobra.Command {
	var f repo.InspectionFilters
	var passed string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inspections",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passed != "" {
				p := passed == "true"
				f.Passed = &p
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListInspections(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Template", "Sequence", "Status", "Score", "Author"})
				for _, insp := range items {
					seq := ""
					if insp.Sequence != nil {
						seq = *insp.Sequence
					}
					score := ""
					if insp.Percentage != nil {
						score = fmt.Sprintf("%.1f%%", *insp.Percentage)
					}
					tw.AppendRow(table.Row{insp.ID, insp.TemplateID, seq, insp.Status, score, insp.AuthorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.TemplateID, "template", "", "template filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (draft, submitted)")
	cmd.Flags().StringVar(&f.AuthorID, "author", "", "author filter")
	cmd.Flags().StringVar(&passed, "passed", "", "passed filter (true, false)")
	return cmd
}

func inspectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.Repo.GetInspection(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	return cmd
}

func inspectAnswerCmd() *cobra.Command {
	var itemID, value, valueJSON string
	cmd := &cobra.Command{
		Use:   "answer <id>",
		Short: "Answer an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var v any
			switch {
			case cmd.Flags().Changed("value-json"):
				if err := json.Unmarshal([]byte(valueJSON), &v); err != nil {
					return fmt.Errorf("invalid --value-json: %w", err)
				}
			case cmd.Flags().Changed("value"):
				v = value
			default:
				return fmt.Errorf("--value or --value-json required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.AnswerItem(ctx, id, itemID, v, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "item id")
	cmd.Flags().StringVar(&value, "value", "", "answer as a string")
	cmd.Flags().StringVar(&valueJSON, "value-json", "", "answer as raw JSON (for booleans, numbers, lists)")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func inspectNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next <id>",
		Short: "Validate the current section and advance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.NextSection(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	return cmd
}

func inspectPrevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prev <id>",
		Short: "Go back one section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.PreviousSection(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	return cmd
}

func inspectSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit an inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				insp, err := e.SubmitInspection(ctx, id, viper.GetString("actor-id"))
				var rejected *engine.RejectedError
				if errors.As(err, &rejected) {
					if viper.GetBool("json") {
						return printJSON(map[string]any{
							"submitted": false,
							"section":   rejected.Section,
							"errors":    rejected.Errors,
						})
					}
					fmt.Printf("Rejected: %d invalid item(s), first in section %d\n", len(rejected.Errors), rejected.Section)
					for item, msg := range rejected.Errors {
						fmt.Printf("  %s: %s\n", item, msg)
					}
					return fmt.Errorf("inspection not submitted")
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(insp)
			})
		},
	}
	return cmd
}

func assetCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "asset",
		Short: "Manage assets",
		Long:  "Assets are the things being inspected. Asset-reference items list the active assets as their options.",
	}
	a.AddCommand(assetCreateCmd())
	a.AddCommand(assetListCmd())
	a.AddCommand(assetRetireCmd())
	return a
}

func assetCreateCmd() *cobra.Command {
	var name, category, locationID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a := domain.Asset{Name: name, Category: category}
				if locationID != "" {
					a.LocationID = &locationID
				}
				res, err := e.CreateAsset(ctx, a, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "asset name")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&locationID, "location", "", "location id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func assetListCmd() *cobra.Command {
	var locationID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAssets(ctx, locationID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Location"})
				for _, a := range items {
					loc := ""
					if a.LocationID != nil {
						loc = *a.LocationID
					}
					tw.AppendRow(table.Row{a.ID, a.Name, a.Category, loc})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&locationID, "location", "", "location filter")
	return cmd
}

func assetRetireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retire <id>",
		Short: "Retire an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.RetireAsset(ctx, id)
			})
		},
	}
	return cmd
}

func locationCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "location",
		Short: "Manage locations",
	}
	l.AddCommand(locationCreateCmd())
	l.AddCommand(locationListCmd())
	return l
}

func locationCreateCmd() *cobra.Command {
	var name, parentID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l := domain.Location{Name: name}
				if parentID != "" {
					l.ParentID = &parentID
				}
				res, err := e.CreateLocation(ctx, l, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "location name")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent location id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func locationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListLocations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Parent"})
				for _, l := range items {
					parent := ""
					if l.ParentID != nil {
						parent = *l.ParentID
					}
					tw.AppendRow(table.Row{l.ID, l.Name, parent})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: imports, answers, submissions, and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func authCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "auth",
		Short: "Manage API keys",
	}
	key := &cobra.Command{Use: "key", Short: "API keys for the HTTP server"}
	key.AddCommand(authKeyCreateCmd())
	key.AddCommand(authKeyListCmd())
	key.AddCommand(authKeyDeleteCmd())
	a.AddCommand(key)
	return a
}

func authKeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret, err := newAPIKeySecret()
				if err != nil {
					return err
				}
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "key": secret})
				}
				fmt.Printf("Created key %s for %s\n", key.ID, key.ActorID)
				fmt.Printf("Secret (store it now, it is not shown again): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func authKeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func authKeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("FORMLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("FORMLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Formline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "accept unauthenticated X-Actor-Id (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func newAPIKeySecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "flk_" + hex.EncodeToString(buf), nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
