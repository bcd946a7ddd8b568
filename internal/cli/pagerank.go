package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var pagerankCmd = &cobra.Command{
	Use:   "pagerank",
	Short: "Trigger one PageRank run against a running crawlgraph cluster.",
	Long: `pagerank posts to the admin API's POST
/api/v1/admin/indexer/pagerank/update route (see --admin-addr), which
schedules an async run and returns immediately with a job id. It's meant
for external scheduling (k8s CronJob, system timer) rather than an
in-process scheduler: no cron library is wired in, by design (see
DESIGN.md).`,
	RunE: runPagerank,
}

func runPagerank(cmd *cobra.Command, args []string) error {
	resp, err := http.Post(adminAddr+"/api/v1/admin/indexer/pagerank/update", "application/json", nil)
	if err != nil {
		return fmt.Errorf("triggering pagerank run: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("pagerank run: admin API responded %s", resp.Status)
	}
	var out struct {
		JobID          string `json:"jobId"`
		AlreadyRunning bool   `json:"alreadyRunning"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding pagerank response: %w", err)
	}
	if out.AlreadyRunning {
		fmt.Printf("pagerank run already in progress: %s\n", out.JobID)
		return nil
	}
	fmt.Printf("pagerank run scheduled: %s\n", out.JobID)
	return nil
}
