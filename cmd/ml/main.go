package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"moldline/internal/app"
	"moldline/internal/catalog"
	"moldline/internal/config"
	"moldline/internal/domain"
	"moldline/internal/engine"
	"moldline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ml",
	Short: "Moldline CLI",
	Long: `Moldline turns an order backlog into a day-by-day production schedule.
- Workspace: a directory holding moldline.yml and .moldline/moldline.db.
- Catalog: orders, molds and workers, loaded with 'ml catalog import'.
- Schedule: each run ranks the backlog by due-date band and places orders on
  compatible molds without exceeding the labor-derived daily capacity.
- Pipeline: 'ml orders advance' moves orders through the configured stages;
  an order leaves the backlog once it enters the first stage.
- Event log: every run, import and advance is recorded; view with 'ml log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(viper.GetString("workspace"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MOLDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("config", "", "config file (default <workspace>/moldline.yml)")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "actor-id", "config", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(moldsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

// loadDotEnv exports <workspace>/.env without overriding variables that are
// already set.
func loadDotEnv(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage moldline.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var siteID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default moldline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(siteID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&siteID, "site", "plant-1", "site id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSON(a.Config)
			})
		},
	}
}

func catalogCmd() *cobra.Command {
	c := &cobra.Command{Use: "catalog", Short: "Manage orders, molds and workers"}
	c.AddCommand(catalogImportCmd())
	return c
}

func catalogImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert orders, molds and workers from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := catalog.Load(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sum, err := a.Engine.ImportCatalog(ctx, f, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("imported %d orders, %d molds, %d workers\n", sum.Orders, sum.Molds, sum.Workers)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func scheduleCmd() *cobra.Command {
	s := &cobra.Command{Use: "schedule", Short: "Generate and inspect production schedules"}
	s.AddCommand(scheduleGenerateCmd())
	s.AddCommand(scheduleListCmd())
	s.AddCommand(scheduleRunsCmd())
	return s
}

func scheduleGenerateCmd() *cobra.Command {
	var days, maxPerDay int
	var start, scope string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Regenerate the schedule for the backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := engine.GenerateRequest{
				Scope:   scope,
				Days:    days,
				ActorID: viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("max-per-day") {
				req.MaxOrdersPerDay = &maxPerDay
			}
			if start != "" {
				d, err := time.Parse(domain.DateLayout, start)
				if err != nil {
					return fmt.Errorf("--start must be YYYY-MM-DD: %w", err)
				}
				req.StartDate = &d
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.GenerateSchedule(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderAllocations(res.Allocations)
				renderReport(res.RunID, res.Report)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "horizon in work days (default scheduling.default_days)")
	cmd.Flags().IntVar(&maxPerDay, "max-per-day", 0, "advisory daily capacity hint")
	cmd.Flags().StringVar(&start, "start", "", "first candidate day (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&scope, "scope", "", "labor department and allocation scope")
	return cmd
}

func scheduleListCmd() *cobra.Command {
	var from, to, scope string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted allocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, v := range []string{from, to} {
				if v == "" {
					continue
				}
				if _, err := time.Parse(domain.DateLayout, v); err != nil {
					return fmt.Errorf("dates must be YYYY-MM-DD: %w", err)
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if scope == "" {
					scope = a.Config.Scheduling.Scope
				}
				items, err := a.Engine.Repo.ListAllocations(ctx, scope, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderAllocations(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&scope, "scope", "", "allocation scope")
	return cmd
}

func scheduleRunsCmd() *cobra.Command {
	var limit int
	var scope string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent schedule runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				runs, err := a.Engine.Repo.ListRuns(ctx, scope, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Run", "Scope", "Start", "Days", "Capacity", "Scheduled", "Unscheduled", "Efficiency", "Actor", "Created"})
				for _, r := range runs {
					tw.AppendRow(table.Row{
						r.ID, r.Scope, r.StartDate, r.Days, r.DailyCapacity,
						r.Report.ScheduledOrders, r.Report.UnscheduledOrders,
						fmt.Sprintf("%.2f%%", r.Report.Efficiency), r.ActorID, r.CreatedAt,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs")
	cmd.Flags().StringVar(&scope, "scope", "", "scope filter")
	return cmd
}

func ordersCmd() *cobra.Command {
	o := &cobra.Command{Use: "orders", Short: "Inspect and advance orders"}
	o.AddCommand(ordersBacklogCmd())
	o.AddCommand(ordersAdvanceCmd())
	return o
}

func ordersBacklogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backlog",
		Short: "List orders waiting to be scheduled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				orders, err := a.Engine.Repo.ListBacklog(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				renderOrders(orders)
				return nil
			})
		},
	}
}

func ordersAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <order-id>...",
		Short: "Move orders to their next pipeline stage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				orders, err := a.Engine.AdvanceOrders(ctx, args, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				renderOrders(orders)
				return nil
			})
		},
	}
}

func moldsCmd() *cobra.Command {
	m := &cobra.Command{Use: "molds", Short: "Inspect molds"}
	m.AddCommand(moldsListCmd())
	return m
}

func moldsListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List molds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var molds []domain.Mold
				var err error
				if all {
					molds, err = a.Engine.Repo.ListMolds(ctx)
				} else {
					molds, err = a.Engine.Repo.ListActiveMolds(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(molds)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Products", "Multiplier", "Active"})
				for _, m := range molds {
					tw.AppendRow(table.Row{m.ID, m.Name, strings.Join(m.Products, ", "), m.Multiplier, m.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive molds")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, scope string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.LatestEventsFrom(ctx, n, 0, scope, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Scope", "Entity", "Actor"})
				for _, e := range items {
					entity := e.EntityKind
					if e.EntityID != "" {
						entity += ":" + e.EntityID
					}
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.Scope, entity, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&scope, "scope", "", "scope filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:    os.Getenv("MOLDLINE_JWT_SECRET"),
					DefaultActor: viper.GetString("actor-id"),
					Logger:       a.Logger,
				}
				if authCfg.JWTSecret == "" {
					a.Logger.Warn("MOLDLINE_JWT_SECRET not set; bearer auth disabled")
				}
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, Logger: a.Logger})
				if err != nil {
					return err
				}
				if d := server.NewWebhookDispatcher(a.Engine, a.Logger); d != nil {
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving moldline api",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.String("docs", "/docs"),
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with MOLDLINE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			tok, err := server.SignToken(os.Getenv("MOLDLINE_JWT_SECRET"), subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		LogLevel:   viper.GetString("log-level"),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
