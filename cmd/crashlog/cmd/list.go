package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashlog/internal/logwriter"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List crash logs, newest first",
	RunE:  runList,
}

var listFilter string

var (
	listNameStyle = lipgloss.NewStyle().Bold(true)
	listTagStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	listDimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listFilter, "filter", "f", "", "fuzzy filter on file name")
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := logwriter.List(cfg.Crash.LogDir)
	if err != nil {
		return err
	}
	entries = filterEntries(entries, listFilter)

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "no crash logs in %s\n", cfg.Crash.LogDir)
		return nil
	}
	for _, e := range entries {
		printEntry(out, e)
	}
	return nil
}

// filterEntries keeps entries whose name fuzzily matches query, best match
// first. An empty query keeps everything in order.
func filterEntries(entries []logwriter.Entry, query string) []logwriter.Entry {
	if query == "" {
		return entries
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	matches := fuzzy.Find(query, names)
	out := make([]logwriter.Entry, 0, len(matches))
	for _, m := range matches {
		out = append(out, entries[m.Index])
	}
	return out
}

func printEntry(w io.Writer, e logwriter.Entry) {
	fmt.Fprintf(w, "%s  %s  %s\n",
		listNameStyle.Render(e.Name),
		listTagStyle.Render(e.Tag),
		listDimStyle.Render(fmt.Sprintf("%s  %d bytes", e.Time.Local().Format(time.DateTime), e.Size)),
	)
}
