package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/relay"
	"github.com/BioHazard786/huddle/internal/ui"
)

var (
	flagStatsServer string
	flagStatsJSON   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show live counters of a relay",
	Long: `Fetch the /stats snapshot of a relay and print it as a table.

Examples:
  huddle stats
  huddle stats --server wss://relay.example.com
  huddle stats --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(config.ClientOptions{
			Server:  flagStatsServer,
			EnvFile: flagEnvFile,
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		stop := func() {}
		if !flagStatsJSON {
			stop = ui.RunConnectionSpinner("Fetching relay stats...")
		}
		stats, err := fetchStats(ctx, http.DefaultClient, cfg.StatsURL())
		stop()
		if err != nil {
			return err
		}

		if flagStatsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		fmt.Println(ui.StatsView(cfg.ServerURL, stats))
		return nil
	},
}

func fetchStats(ctx context.Context, client *http.Client, url string) (relay.Stats, error) {
	var stats relay.Stats
	if url == "" {
		return stats, fmt.Errorf("cannot derive stats URL from server address")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return stats, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("fetch stats: relay answered %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&flagStatsServer, "server", "", "Relay address (ws://, wss://, http:// or https://)")
	statsCmd.Flags().BoolVar(&flagStatsJSON, "json", false, "Print raw JSON")
}
