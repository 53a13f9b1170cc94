package cli

import (
	"fmt"
	"os"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"

	"github.com/skyrelay/skyrelay/internal/analytics"
	log "github.com/skyrelay/skyrelay/internal/logging"
)

var (
	exportOut      string
	exportKind     string
	exportOpenFile bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show usage statistics",
	Run: func(c *cobra.Command, args []string) {
		_, dataDir, err := loadConfig()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		query := analytics.NewQueryService(
			analytics.NewAggregateStore(dataDir),
			analytics.NewHistoryStore(dataDir),
		)
		stats := query.Query()

		c.Printf("Requests:  %d total, %d ok, %d failed\n",
			stats.TotalRequests, stats.SuccessCount, stats.FailureCount)
		c.Printf("Tokens:    %d in, %d out\n", stats.TotalTokensIn, stats.TotalTokensOut)
		c.Printf("Cost:      $%.4f\n", stats.TotalCostUSD)
		c.Printf("Today:     %d requests, %d tokens\n", stats.RequestsToday, stats.TokensToday)
		for _, row := range stats.ModelUsage {
			c.Printf("  model %-32s %6d req %10d tok\n", row.Name, row.Requests, row.Tokens)
		}
		for _, row := range stats.ProviderUsage {
			c.Printf("  provider %-29s %6d req %10d tok\n", row.Name, row.Requests, row.Tokens)
		}
	},
}

var statsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export usage data to a file",
	Long: `Export usage data to a file.

--kind history writes the recent-request window as CSV; --kind aggregate
writes the cumulative analytics document as JSON. An output path ending in
.gz is gzip-compressed.`,
	Run: func(c *cobra.Command, args []string) {
		_, dataDir, err := loadConfig()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		out := exportOut
		switch exportKind {
		case "history":
			if out == "" {
				out = "history.csv"
			}
			hist := analytics.NewHistoryStore(dataDir).Load()
			err = analytics.ExportHistoryFile(out, hist)
		case "aggregate":
			if out == "" {
				out = "aggregate.json"
			}
			agg := analytics.NewAggregateStore(dataDir).Load()
			err = analytics.ExportAggregateFile(out, agg)
		default:
			fmt.Fprintln(os.Stderr, "export kind must be history or aggregate")
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		c.Printf("Exported to %s\n", out)
		if exportOpenFile {
			if err := open.Start(out); err != nil {
				log.Warnf("Could not open %s: %v", out, err)
			}
		}
	},
}

var statsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the recent request history",
	Run: func(c *cobra.Command, args []string) {
		_, dataDir, err := loadConfig()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		store := analytics.NewHistoryStore(dataDir)
		hist := store.Load()
		hist.Clear()
		if err := store.Save(hist); err != nil {
			log.Fatalf("Clear failed: %v", err)
		}
		c.Println("History cleared")
	},
}

var statsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset cumulative analytics",
	Long: `Reset cumulative analytics.

The aggregate document is deleted; a fresh one with a new creation timestamp
is written when the next request is recorded. The request history is kept.`,
	Run: func(c *cobra.Command, args []string) {
		_, dataDir, err := loadConfig()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		if err := analytics.NewAggregateStore(dataDir).Delete(); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		c.Println("Analytics reset")
	},
}

func init() {
	statsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file path")
	statsExportCmd.Flags().StringVarP(&exportKind, "kind", "k", "history", "what to export: history or aggregate")
	statsExportCmd.Flags().BoolVar(&exportOpenFile, "open", false, "open the exported file when done")
	statsCmd.AddCommand(statsExportCmd, statsClearCmd, statsResetCmd)
	rootCmd.AddCommand(statsCmd)
}
