package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/store"
)

const (
	subjectWidth = 40
	senderWidth  = 30
)

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		limit      int
		status     string
		search     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived activity",
		Long: `List archived activity, newest first.

Examples:
  autoreply history                     # last 20 handled messages
  autoreply history --limit 100         # last 100
  autoreply history --status error      # failures only
  autoreply history --search invoice    # subject or sender match
  autoreply history --json              # machine-readable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := historyFilter(limit, status, search)
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			return runHistory(cmd, s, filter, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (replied, skipped, error)")
	cmd.Flags().StringVar(&search, "search", "", "match subject or sender")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func historyFilter(limit int, status, search string) (store.ActivityFilter, error) {
	f := store.ActivityFilter{Limit: limit}
	if status != "" {
		kind := model.ActivityKind(strings.ToLower(status))
		switch kind {
		case model.ActivityReplied, model.ActivitySkipped, model.ActivityError:
			f.Kind = &kind
		default:
			return f, fmt.Errorf("unknown status %q: want replied, skipped or error", status)
		}
	}
	if search != "" {
		f.Query = &search
	}
	return f, nil
}

func runHistory(cmd *cobra.Command, s store.Store, filter store.ActivityFilter, jsonOutput bool) error {
	ctx := cmd.Context()
	activities, err := s.GetActivities(ctx, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if activities == nil {
			activities = []model.Activity{}
		}
		return enc.Encode(activities)
	}

	if len(activities) == 0 {
		fmt.Fprintln(out, "No archived activity.")
		return nil
	}
	writeHistory(out, activities)

	counts, err := s.CountByKind(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal: %d replied, %d skipped, %d errors\n",
		counts[model.ActivityReplied], counts[model.ActivitySkipped], counts[model.ActivityError])
	return nil
}

// writeHistory prints one aligned row per record. Columns are padded by
// display width so CJK subjects line up.
func writeHistory(out io.Writer, activities []model.Activity) {
	fmt.Fprintf(out, "%-19s  %s  %s  %s\n", "TIME",
		runewidth.FillRight("SUBJECT", subjectWidth),
		runewidth.FillRight("FROM", senderWidth),
		"STATUS")
	for _, a := range activities {
		fmt.Fprintf(out, "%-19s  %s  %s  %s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			column(a.Subject, subjectWidth),
			column(a.Sender, senderWidth),
			a.Status)
	}
}

func column(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}
