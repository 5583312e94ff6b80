package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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
	"gopkg.in/yaml.v3"

	"github.com/Bluenode2024/POCBE/internal/app"
	"github.com/Bluenode2024/POCBE/internal/config"
	"github.com/Bluenode2024/POCBE/internal/db"
	"github.com/Bluenode2024/POCBE/internal/engine"
	"github.com/Bluenode2024/POCBE/internal/migrate"
	"github.com/Bluenode2024/POCBE/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pocbe",
	Short: "POCBE validation engine",
	Long: `POCBE assigns validators to submitted tasks and drives each validation through
its lifecycle.
- Validation: pending (waiting for the validator) -> validating (dispute window open) -> success.
- A validator who does not confirm in time is replaced by another eligible validator.
- Project leaders and members never validate their own project's tasks.
- Disputes move a validation to reported; an admin approves (stays reported) or rejects (success).
- Deadlines live in memory and are rebuilt from the store on every start.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := loadDotEnv(workspace); err != nil {
			return err
		}
		logger, err := newLogger(viper.GetString("log-level"), viper.GetString("log-format"))
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
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
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("POCBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("user-id", "", "acting user id (POCBE_USER_ID)")
	flags.String("driver", "", "database driver override (sqlite|postgres)")
	flags.String("dsn", "", "database dsn override")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.String("log-format", "text", "log format (text|json)")
	for _, name := range []string{"workspace", "json", "user-id", "driver", "dsn", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(useUserCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(validatorCmd())
	rootCmd.AddCommand(validationCmd())
	rootCmd.AddCommand(disputeCmd())
	rootCmd.AddCommand(logCmd())
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

// loadDotEnv reads <workspace>/.env without overriding variables already set.
func loadDotEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Opens the store, re-arms every stored deadline, then serves the API. Webhooks in pocbe.yml are dispatched while serving.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("POCBE_JWT_SECRET is required for bearer auth")
			}
			rt, err := app.Bootstrap(cmd.Context(), runtimeOptions(false))
			if err != nil {
				return err
			}
			defer rt.Close()
			slog.Info("recovery complete",
				"rearmed", rt.Recovery.Rearmed,
				"reassigned", rt.Recovery.Reassigned,
				"succeeded", rt.Recovery.Succeeded,
				"failed", rt.Recovery.Failed)

			if addr == "" {
				addr = rt.Config.Server.Addr
			}
			if basePath == "" {
				basePath = rt.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: server.AuthConfig{
				JWTSecret:         secret,
				AllowLegacyHeader: rt.Config.Auth.AllowLegacyHeader,
				Logger:            slog.Default().With("component", "auth"),
			}})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if d := server.NewWebhookDispatcher(rt.Engine, slog.Default()); d != nil {
				go d.Run(ctx)
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			slog.Info("serving POCBE API", "url", "http://"+addr+basePath, "openapi", basePath+"/openapi.json", "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from pocbe.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from pocbe.yml)")
	_ = viper.BindEnv("jwt-secret", "POCBE_JWT_SECRET")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Bootstrap(cmd.Context(), runtimeOptions(true))
			if err != nil {
				return err
			}
			defer rt.Close()
			version, err := migrate.Version(rt.Conn)
			if err != nil {
				return err
			}
			out := map[string]any{"dialect": rt.Dialect, "schema_version": version}
			if viper.GetBool("json") {
				return printJSON(out)
			}
			fmt.Printf("Schema version %d (%s)\n", version, rt.Dialect)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default pocbe.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(runtimeOptions(true))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

func recoverCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Apply overdue timeouts from the store",
		Long:  "Runs the startup recovery once: overdue pending validations are reassigned and overdue validating ones succeed. --dry-run only lists them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					overdue, err := e.Overdue(ctx)
					if err != nil {
						return err
					}
					return printValidations(overdue)
				})
			}
			rt, err := app.Bootstrap(cmd.Context(), runtimeOptions(false))
			if err != nil {
				return err
			}
			defer rt.Close()
			return printJSONOrTable(rt.Recovery)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list overdue validations without changing them")
	return cmd
}

func useUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-user <user-id>",
		Short: "Set the default acting user in the workspace .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := filepath.Join(workspace, ".env")
			if err := setEnvValue(path, "POCBE_USER_ID", args[0]); err != nil {
				return err
			}
			fmt.Printf("Default user set to %s in %s\n", args[0], path)
			return nil
		},
	}
}

// --- helpers ---

func runtimeOptions(skipRecovery bool) app.Options {
	return app.Options{
		Workspace:    viper.GetString("workspace"),
		Driver:       viper.GetString("driver"),
		DSN:          viper.GetString("dsn"),
		Logger:       slog.Default(),
		SkipRecovery: skipRecovery,
	}
}

// withEngine runs fn against a migrated store without re-arming stored
// deadlines; a one-shot command cannot keep them alive.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := app.Bootstrap(ctx, runtimeOptions(true))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func actingUser() (string, error) {
	id := strings.TrimSpace(viper.GetString("user-id"))
	if id == "" {
		return "", fmt.Errorf("acting user required; pass --user-id or run pocbe use-user")
	}
	return id, nil
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

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
