package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/research-reports/internal/app"
)

// Version is set at build time via ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "reportgen",
	Short:         "Research report generation service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := app.NewLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()
		pg, err := app.OpenDatabase(log, cfg, true)
		if err != nil {
			return err
		}
		defer pg.Close()
		log.Info("migrations applied")
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed a document collection into the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		if collection == "" {
			return fmt.Errorf("--collection is required")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := app.NewLogger(cfg)
		if err != nil {
			return err
		}
		a, err := app.New(ctx, log, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.IndexCollection(ctx, collection)
		if err != nil {
			return fmt.Errorf("index %s after %d documents: %w", collection, n, err)
		}
		log.Info("collection indexed", "collection_id", collection, "documents", n)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional config file (yaml, json or toml)")
	indexCmd.Flags().String("collection", "", "collection id to index")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (app.Config, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return app.Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.Version == "dev" {
		cfg.Version = Version
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("failed to initialize app", "error", err)
		log.Sync()
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
