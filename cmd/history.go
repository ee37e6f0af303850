package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bundlesmith/bundlesmith/internal/database"
)

type historyParams struct {
	configFiles []string
	pipeline    string
	limit       int
}

func init() {
	params := historyParams{}

	history := &cobra.Command{
		Use:   "history",
		Short: "Show recorded build history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), params)
		},
	}

	addConfigFlag(history.Flags(), &params.configFiles)
	history.Flags().StringVarP(&params.pipeline, "pipeline", "p", "", "limit history to one pipeline")
	history.Flags().IntVarP(&params.limit, "limit", "n", 50, "maximum number of rows")

	RootCommand.AddCommand(history)
}

func runHistory(ctx context.Context, params historyParams) error {
	root, err := loadConfig(params.configFiles)
	if err != nil {
		return err
	}

	if root.Database == nil || root.Database.SQL == nil {
		return fmt.Errorf("no database configured")
	}

	db := database.New().WithConfig(root.Database)
	if err := db.InitDB(ctx); err != nil {
		return err
	}
	defer db.Close()

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Pipeline", "State", "Revision", "Started", "Duration", "Message")
	for b, err := range db.ListBuilds(ctx, params.pipeline, params.limit) {
		if err != nil {
			return err
		}
		if err := table.Append([]string{
			b.Pipeline,
			b.State,
			short(b.Revision),
			b.Started().Format(time.RFC3339),
			(time.Duration(b.DurationMS) * time.Millisecond).String(),
			b.Message,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
