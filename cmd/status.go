package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bundlesmith/bundlesmith/internal/service"
)

type statusParams struct {
	addr   string
	prefix string
}

func init() {
	params := statusParams{}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline statuses of a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), params)
		},
	}

	status.Flags().StringVar(&params.addr, "addr", "localhost:8282", "service address")
	status.Flags().StringVar(&params.prefix, "prefix", "", "service API prefix")

	RootCommand.AddCommand(status)
}

func runStatus(ctx context.Context, params statusParams) error {
	url := fmt.Sprintf("http://%s%s/v1/pipelines", params.addr, strings.TrimSuffix(params.prefix, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status: %s", resp.Status)
	}

	var statuses struct {
		Result []service.Status `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return err
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Pipeline", "State", "Revision", "Last Built", "Message")
	for _, s := range statuses.Result {
		lastBuilt := ""
		if !s.LastBuilt.IsZero() {
			lastBuilt = s.LastBuilt.Format(time.RFC3339)
		}
		if err := table.Append([]string{s.Pipeline, s.State.String(), short(s.Revision), lastBuilt, s.Message}); err != nil {
			return err
		}
	}
	return table.Render()
}

func short(revision string) string {
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}
