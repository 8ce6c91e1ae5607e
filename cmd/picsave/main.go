package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/picsave/internal/profile"
	"github.com/hrygo/picsave/internal/version"
	"github.com/hrygo/picsave/server/auth"
)

var (
	rootCmd = &cobra.Command{
		Use:   "picsave",
		Short: `A Telegram bot that saves pictures and stickers and finds them again by description.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Systemd units pass configuration through the environment.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			setupLogger(viper.GetString("mode"), viper.GetString("log-level"))
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), terminationSignals...)
			defer cancel()

			a, err := newApp(ctx, instanceProfile)
			if err != nil {
				printDatabaseError(err, instanceProfile)
				return err
			}
			defer a.Close()

			return a.Run(ctx)
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context(), instanceProfile)
			if err != nil {
				printDatabaseError(err, instanceProfile)
				return err
			}
			defer s.Close()
			fmt.Printf("Database migrated (%s)\n", instanceProfile.Driver)
			return nil
		},
	}

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Recompute the embedding of every saved media record",
		RunE: func(_ *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), terminationSignals...)
			defer cancel()

			a, err := newApp(ctx, instanceProfile)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.service.Reindex(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Reindex %s: %d of %d reindexed, %d skipped, %d failed in %s\n",
				report.RunID, report.Reindexed, report.Total, report.Skipped, len(report.Failures), report.Duration.Round(time.Millisecond))
			for _, f := range report.Failures {
				fmt.Fprintf(os.Stderr, "  record %d: %v\n", f.RecordID, f.Err)
			}
			return nil
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			role, _ := cmd.Flags().GetString("role")
			token, err := auth.NewAuthenticator(instanceProfile.JWTSecret).GenerateToken(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.StringFull())
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8080)
	viper.SetDefault("log-level", "info")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the HTTP server")
	rootCmd.PersistentFlags().Int("port", 8080, "port of the HTTP server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("telegram-token", "", "Telegram bot token; the bot is disabled when empty")
	rootCmd.PersistentFlags().Int64("admin-chat-id", 0, "chat allowed to run /reindex")
	rootCmd.PersistentFlags().String("embedding-url", "", "base URL of the embedding service")
	rootCmd.PersistentFlags().String("metric", "", "distance metric (cosine, euclidean)")
	rootCmd.PersistentFlags().String("ranking", "", "order of results for an empty query (popularity, recency)")
	rootCmd.PersistentFlags().Int("page-size", 0, "results per page (max 50)")

	for _, key := range []string{
		"mode", "addr", "port", "data", "driver", "dsn", "log-level",
		"telegram-token", "admin-chat-id", "embedding-url", "metric", "ranking", "page-size",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("picsave")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	tokenCmd.Flags().String("subject", "admin", "subject recorded in the token; an owner id for per-owner access")
	tokenCmd.Flags().String("role", auth.RoleAdmin, "role recorded in the token; empty for an owner token")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(migrateCmd, reindexCmd, tokenCmd, versionCmd)
}

func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:             viper.GetString("mode"),
		Addr:             viper.GetString("addr"),
		Port:             viper.GetInt("port"),
		Data:             viper.GetString("data"),
		Driver:           viper.GetString("driver"),
		DSN:              viper.GetString("dsn"),
		TelegramBotToken: viper.GetString("telegram-token"),
		AdminChatID:      viper.GetInt64("admin-chat-id"),
		EmbeddingBaseURL: viper.GetString("embedding-url"),
		DistanceMetric:   viper.GetString("metric"),
		RankingMode:      viper.GetString("ranking"),
		PageSize:         viper.GetInt("page-size"),
		Version:          version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func setupLogger(mode, level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if mode == "prod" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func printGreetings(profile *profile.Profile, botEnabled bool) {
	fmt.Printf("picsave %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	fmt.Printf("Embedding service: %s (dim %d)\n", profile.EmbeddingBaseURL, profile.EmbeddingDim)
	fmt.Printf("Translation: %s\n", profile.TranslationProvider)
	if botEnabled {
		fmt.Println("Telegram bot: enabled")
	} else {
		fmt.Println("Telegram bot: disabled (no token)")
	}

	if len(profile.Addr) == 0 {
		fmt.Printf("HTTP API running on port %d\n", profile.Port)
	} else {
		fmt.Printf("HTTP API running on %s:%d\n", profile.Addr, profile.Port)
	}
	fmt.Println()
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides user-friendly error messages for database connection issues
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nStartup failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL is not reachable.")
		if profile.Driver == "postgres" {
			fmt.Fprintf(os.Stderr, "   Check that PostgreSQL with the pgvector extension is running.\n")
		}
		fmt.Fprintf(os.Stderr, "   Or use SQLite for development: PICSAVE_DRIVER=sqlite\n")

	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL SSL configuration mismatch.")
		fmt.Fprintf(os.Stderr, "   Add ?sslmode=disable to your DSN.\n")

	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL authentication failed.")
		fmt.Fprintf(os.Stderr, "   Check your credentials in the DSN or .env file.\n")

	case strings.Contains(errMsg, "extension \"vector\""):
		fmt.Fprintln(os.Stderr, "\nThe pgvector extension is not available.")
		fmt.Fprintf(os.Stderr, "   Install pgvector or use the SQLite driver.\n")

	default:
		fmt.Fprintln(os.Stderr, "\nError:", errMsg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
