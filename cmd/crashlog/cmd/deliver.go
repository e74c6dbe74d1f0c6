package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashlog/internal/bootstrap"
	"github.com/hugo-lorenzo-mato/crashlog/internal/delivery"
)

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Deliver a handed-off crash report",
	Long: `Deliver one envelope written by a crashing process. This is the command the
process delivery mode starts; it can also be run by hand.`,
	RunE: runDeliver,
}

var (
	deliverEnvelope string
	deliverTimeout  time.Duration
)

func init() {
	rootCmd.AddCommand(deliverCmd)
	deliverCmd.Flags().StringVar(&deliverEnvelope, "envelope", "", "envelope file to deliver")
	deliverCmd.Flags().DurationVar(&deliverTimeout, "timeout", 2*time.Minute, "overall delivery timeout")
	_ = deliverCmd.MarkFlagRequired("envelope")
}

func runDeliver(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	env, err := delivery.LoadEnvelope(deliverEnvelope)
	if err != nil {
		return err
	}

	d, err := bootstrap.OpenDelivery(cfg, logger.WithReport(env.ID).Logger)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	if err := d.Deliver(ctx, env, absPath(deliverEnvelope)); err != nil {
		return fmt.Errorf("delivering %s: %w", env.ID, err)
	}
	entry, err := d.Outbox.Get(ctx, env.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", env.ID, entry.Status)
	return nil
}
