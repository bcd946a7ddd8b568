package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Submit one or more seed URLs to a running crawlgraph cluster.",
	Long: `seed posts --seed-url values to the admin API's POST
/api/v1/admin/crawl/seeds route (see --admin-addr), admitting them into
the Frontier at depth 0 exactly as serve's own startup seeding does.`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	if len(seedURLs) == 0 {
		return fmt.Errorf("at least one --seed-url is required")
	}

	body, err := json.Marshal(map[string][]string{"urls": seedURLs})
	if err != nil {
		return err
	}
	resp, err := http.Post(adminAddr+"/api/v1/admin/crawl/seeds", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submitting seeds: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("submitting seeds: admin API responded %s", resp.Status)
	}
	for _, raw := range seedURLs {
		fmt.Printf("admitted: %s\n", raw)
	}
	return nil
}
