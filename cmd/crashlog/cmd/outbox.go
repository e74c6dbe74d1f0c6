package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashlog/internal/bootstrap"
	"github.com/hugo-lorenzo-mato/crashlog/internal/delivery"
	"github.com/hugo-lorenzo-mato/crashlog/internal/outbox"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Show crash reports waiting for delivery",
	RunE:  runOutbox,
}

var outboxResendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Retry delivery of pending and failed reports",
	RunE:  runOutboxResend,
}

var (
	outboxAll   bool
	outboxLimit int
)

func init() {
	rootCmd.AddCommand(outboxCmd)
	outboxCmd.AddCommand(outboxResendCmd)
	outboxCmd.PersistentFlags().IntVar(&outboxLimit, "limit", 50, "maximum number of entries")
	outboxCmd.Flags().BoolVar(&outboxAll, "all", false, "include delivered and skipped entries")
}

func runOutbox(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := outbox.Open(cfg.Outbox.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	var entries []outbox.Entry
	if outboxAll {
		entries, err = store.List(cmd.Context(), outboxLimit)
	} else {
		entries, err = store.Pending(cmd.Context(), outboxLimit)
	}
	if err != nil {
		return err
	}

	printOutbox(cmd.OutOrStdout(), entries)
	return nil
}

func printOutbox(w io.Writer, entries []outbox.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "outbox is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAG\tSTATUS\tATTEMPTS\tCREATED\tLAST ERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.Tag, e.Status, e.Attempts, e.CreatedAt.Local().Format(time.DateTime), e.LastError)
	}
	_ = tw.Flush()
}

func runOutboxResend(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	d, err := bootstrap.OpenDelivery(cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer d.Close()

	pending, err := d.Outbox.Pending(cmd.Context(), outboxLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, e := range pending {
		if err := resend(cmd.Context(), d, e, logger.Logger); err != nil {
			failed++
			fmt.Fprintf(out, "%s: %v\n", e.ID, err)
			continue
		}
		fmt.Fprintf(out, "%s: resent\n", e.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deliveries failed", failed, len(pending))
	}
	return nil
}

func resend(ctx context.Context, d *bootstrap.Delivery, e outbox.Entry, logger *slog.Logger) error {
	if e.EnvelopePath == "" {
		return errors.New("no envelope recorded")
	}
	env, err := delivery.LoadEnvelope(e.EnvelopePath)
	if err != nil {
		return err
	}
	logger.Debug("resending", "id", env.ID, "attempts", e.Attempts)
	return d.Deliver(ctx, env, e.EnvelopePath)
}
