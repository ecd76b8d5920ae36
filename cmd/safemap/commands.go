package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"SafeMap/internal/app"
	"SafeMap/internal/config"
	"SafeMap/internal/domain"
	"SafeMap/internal/infrastructure/parser"
	"SafeMap/internal/logging"
)

type options struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "safemap",
		Short:         "Crime-news risk mapping service",
		Long:          `SafeMap fetches crime reports, clusters them by meaning and location, scores area risk and keeps an incident lineage.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $SAFEMAP_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(newServeCommand(opts), newRunCommand(opts), newReannotateCommand(opts))
	return root
}

// bootstrap loads config and builds the application; the caller closes it.
func bootstrap(cmd *cobra.Command, opts *options) (*app.Application, *slog.Logger, error) {
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build application: %w", err)
	}
	return application, logger, nil
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gin.SetMode(gin.ReleaseMode)
			application, logger, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Serve(cmd.Context()); err != nil {
				logger.Error("application stopped", "error", err)
				return err
			}
			return nil
		},
	}
}

func newRunCommand(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once over the configured sources or a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer application.Close()

			var result domain.PipelineResult
			if file != "" {
				articles, err := parser.ReadCSVFile(file)
				if err != nil {
					return err
				}
				result, err = application.RunArticles(cmd.Context(), articles)
				if err != nil {
					return err
				}
			} else {
				result, err = application.RunWindow(cmd.Context())
				if err != nil {
					return err
				}
			}
			return printSummary(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file with title,description,publishedAt,source,url,lat,lon columns")
	return cmd
}

func newReannotateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reannotate",
		Short: "Recompute clusters and risk for every active incident",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Reannotate(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(cmd, result)
		},
	}
}

// printSummary writes run counts and cluster risks as JSON to stdout.
func printSummary(cmd *cobra.Command, result domain.PipelineResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary  domain.RunSummary    `json:"summary"`
		Clusters []domain.ClusterRisk `json:"clusters"`
		Merges   int                  `json:"merge_suggestions"`
		Conflict int                  `json:"conflict_flags"`
	}{
		Summary:  result.Summary,
		Clusters: result.Clusters,
		Merges:   len(result.MergeSuggestions),
		Conflict: len(result.ConflictFlags),
	})
}
