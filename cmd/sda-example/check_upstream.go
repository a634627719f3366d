package main

import (
	"context"
	"fmt"
	"io"

	"sda-commons/internal/config"
	"sda-commons/internal/http/client"
	"sda-commons/internal/observability/logger"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkPath string

var checkUpstreamCmd = &cobra.Command{
	Use:   "check-upstream",
	Short: "Call the upstream directory once and report the result",
	Long:  `Build the directory client exactly as serve does and issue a single GET against the upstream.`,
	RunE:  runCheckUpstream,
}

func init() {
	checkUpstreamCmd.Flags().StringVar(&checkPath, "path", "", "path to request (defaults to UPSTREAM_HEALTH_PATH)")
	rootCmd.AddCommand(checkUpstreamCmd)
}

func runCheckUpstream(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	path := checkPath
	if path == "" {
		path = cfg.UpstreamHealthPath
	}

	return checkUpstream(cmd.Context(), cmd.OutOrStdout(), cfg, log, path)
}

// checkUpstream runs one GET outside any inbound request, so only the
// consumer token is propagated.
func checkUpstream(ctx context.Context, out io.Writer, cfg *config.Config, log *logger.Logger, path string) error {
	bundle := client.NewBundle[*config.Config]().
		WithConsumerTokenProvider(config.TokenFromConfig).
		Build()
	if err := bundle.Run(cfg, chi.NewRouter(), client.WithLogger(log)); err != nil {
		return err
	}
	factory, err := bundle.ClientFactory()
	if err != nil {
		return err
	}

	upstream, err := newDirectoryClient(factory, cfg)
	if err != nil {
		return fmt.Errorf("failed to build directory client: %w", err)
	}

	resp, err := upstream.Get(ctx, path)
	if err != nil {
		log.Error(ctx, "upstream check failed",
			logger.Module("cli"),
			logger.Action("check_upstream"),
			zap.Error(err),
		)
		return fmt.Errorf("upstream %s: %w", upstream.Name(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	_, err = fmt.Fprintf(out, "%s %s%s -> %d\n", upstream.Name(), upstream.BaseURL().String(), path, resp.StatusCode)
	return err
}
