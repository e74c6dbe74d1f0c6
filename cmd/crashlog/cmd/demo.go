package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashlog/internal/bootstrap"
	"github.com/hugo-lorenzo-mato/crashlog/internal/crash"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Crash on purpose to exercise the pipeline",
	Long: `Install the crash handler for the configured tag and crash a guarded
goroutine. The handler writes a crash log, composes the report, hands it to
delivery and exits the process with the configured exit code.

With --nil a null failure is dispatched instead; the handler delegates it and
the command returns normally.`,
	RunE: runDemo,
}

var (
	demoNil  bool
	demoKind string
)

// errDemoSurvived is returned when the handler did not end the process.
var errDemoSurvived = errors.New("crash handler did not terminate the process")

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().BoolVar(&demoNil, "nil", false, "dispatch a null failure instead of crashing")
	demoCmd.Flags().StringVar(&demoKind, "kind", "nil-map", "failure to raise (nil-map, index, error)")
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cfg, file, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	fail, err := demoFailure(demoKind)
	if err != nil {
		return err
	}

	pipeline, err := bootstrap.New(cfg, bootstrap.WithLogger(logger.WithTag(cfg.Crash.Tag).Logger))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	handler := pipeline.Handler()
	if err := handler.Install(appContext(file, cfg.Crash.Tag)); err != nil {
		return err
	}

	if demoNil {
		crash.Dispatch(crash.Thread{Name: "demo"}, nil)
		fmt.Fprintln(cmd.OutOrStdout(), "null failure delegated; process continues")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "crashing a guarded goroutine (%s, delivery mode %s)\n", demoKind, pipeline.Mode)
	crash.Go("demo", fail)

	// The handler exits the process. Only a misconfiguration gets past this.
	settings, err := bootstrap.Settings(cfg.Crash)
	if err != nil {
		return err
	}
	time.Sleep(settings.HandoffTimeout + settings.ExitWait + 5*time.Second)
	return errDemoSurvived
}

func demoFailure(kind string) (func(), error) {
	switch kind {
	case "nil-map":
		return func() {
			var m map[string]int
			m["boom"]++
		}, nil
	case "index":
		return func() {
			s := []int{1, 2}
			i := len(s) + 1
			_ = s[i]
		}, nil
	case "error":
		return func() {
			panic(fmt.Errorf("demo: %w", errors.New("simulated unrecoverable error")))
		}, nil
	default:
		return nil, fmt.Errorf("unknown failure kind %q (want nil-map, index or error)", kind)
	}
}
