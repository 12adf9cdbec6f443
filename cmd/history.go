package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/webharvest/imgcrawler/internal/store"
)

// newHistoryCmd creates the 'history' subcommand.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded crawl and search sessions",
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 20, "maximum number of sessions to show")
	_ = viper.BindPFlag("history.limit", cmd.Flags().Lookup("limit"))
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabasePath == "" {
		return fmt.Errorf("no crawl database configured (set store.path)")
	}
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	sessions, err := db.RecentSessions(cmd.Context(), viper.GetInt("history.limit"))
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tKIND\tTARGET\tPAGES\tFOUND\tSAVED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			s.StartedAt.Format("2006-01-02 15:04:05"),
			s.Kind, s.Target, s.PagesVisited, s.AssetsFound, s.AssetsSaved,
		)
	}
	return w.Flush()
}
