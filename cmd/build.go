package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bundlesmith/bundlesmith/internal/database"
	"github.com/bundlesmith/bundlesmith/internal/logging"
	"github.com/bundlesmith/bundlesmith/internal/progress"
	"github.com/bundlesmith/bundlesmith/internal/service"
)

type buildParams struct {
	configFiles []string
	logging     logging.Config
	noProgress  bool
}

func init() {
	params := buildParams{}

	build := &cobra.Command{
		Use:   "build",
		Short: "Build all pipelines once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), params)
		},
	}

	addConfigFlag(build.Flags(), &params.configFiles)
	addLoggingFlags(build.Flags(), &params.logging)
	build.Flags().BoolVar(&params.noProgress, "no-progress", false, "disable the progress bar")

	RootCommand.AddCommand(build)
}

func runBuild(ctx context.Context, params buildParams) error {
	log := logging.NewLogger(params.logging)

	root, err := loadConfig(params.configFiles)
	if err != nil {
		return err
	}

	db := database.New().WithConfig(root.Database)
	if err := db.InitDB(ctx); err != nil {
		return err
	}
	defer db.Close()

	var w io.Writer
	if !params.noProgress {
		w = os.Stderr
	}
	bar := progress.New(w, len(root.Pipelines), "building")
	defer bar.Finish()

	svc := service.New().
		WithConfig(root).
		WithLogger(log).
		WithDatabase(db).
		WithProgress(bar).
		WithSingleShot(true)

	if err := svc.Run(ctx); err != nil {
		return err
	}

	failed := 0
	for _, status := range svc.Statuses() {
		if status.State != service.BuildStateSuccess {
			failed++
			log.Errorf("Pipeline %q failed: %s: %s", status.Pipeline, status.State, status.Message)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pipelines failed", failed, len(root.Pipelines))
	}

	return nil
}
