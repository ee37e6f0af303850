package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/database"
	"github.com/bundlesmith/bundlesmith/internal/logging"
	"github.com/bundlesmith/bundlesmith/internal/server"
	"github.com/bundlesmith/bundlesmith/internal/service"
)

type runParams struct {
	configFiles    []string
	logging        logging.Config
	persistenceDir string
	singleShot     bool
}

func init() {
	params := runParams{}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline build service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context(), params)
		},
	}

	addConfigFlag(run.Flags(), &params.configFiles)
	addLoggingFlags(run.Flags(), &params.logging)
	run.Flags().StringVar(&params.persistenceDir, "persistence-dir", "",
		"directory for the build history database when none is configured")
	run.Flags().BoolVar(&params.singleShot, "single-shot", false,
		"build each pipeline once and exit")

	RootCommand.AddCommand(run)
}

func runService(ctx context.Context, params runParams) error {
	log := logging.NewLogger(params.logging)

	root, err := loadConfig(params.configFiles)
	if err != nil {
		return err
	}

	if params.persistenceDir != "" {
		if err := os.MkdirAll(params.persistenceDir, 0o755); err != nil {
			return err
		}
		root.SetSQLitePersistentByDefault(params.persistenceDir)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db := database.New().WithConfig(root.Database).WithLogger(log.WithName("database"))
	if err := db.InitDB(ctx); err != nil {
		return err
	}
	defer db.Close()

	svc := service.New().
		WithConfig(root).
		WithLogger(log).
		WithDatabase(db).
		WithSingleShot(params.singleShot)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(ctx)
	})

	if !params.singleShot {
		g.Go(func() error {
			return reloadOnSignal(ctx, svc, params.configFiles, log)
		})
	}

	if root.Service != nil && root.Service.Addr != "" {
		g.Go(func() error {
			return server.New().
				WithConfig(root.Service).
				WithService(svc).
				WithLogger(log.WithName("server")).
				Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// reloadOnSignal re-reads the configuration on SIGHUP and applies it to the
// running service. A reload that fails to load or validate leaves the
// service on its current configuration.
func reloadOnSignal(ctx context.Context, svc *service.Service, configFiles []string, log *logging.Logger) error {
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reload:
			root, err := loadConfig(configFiles)
			if err != nil {
				log.Warnf("configuration reload failed: %v", err)
				continue
			}
			if err := svc.Reconfigure(root); err != nil {
				log.Warnf("configuration reload failed: %v", err)
				continue
			}
			log.Infof("configuration reloaded")
		}
	}
}

func loadConfig(configFiles []string) (*config.Root, error) {
	bs, err := config.Merge(configFiles, false)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(bs); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config.Parse(bs)
}
