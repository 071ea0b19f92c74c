package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/GoCodeAlone/scriptloader"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *globalOptions) *cobra.Command {
	var refresh, events string

	cmd := &cobra.Command{
		Use:   "run [manifest]",
		Short: "Resolve a manifest, run the app and print the module table",
		Long: `Resolve the manifest (the root manifest when omitted), wait for every
fetch and execution to settle, request the app run and print the status of
each registered module. With --refresh the whole load is repeated on a cron
schedule until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			manifest := ""
			if len(args) == 1 {
				manifest = args[0]
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var observers []scriptloader.Observer
			if events != "" {
				eventLog, err := scriptloader.NewEventLog("cli-events", events, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				observers = append(observers, eventLog)
			}

			if refresh == "" {
				return runOnce(ctx, cfg, logger, manifest, cmd.OutOrStdout(), observers...)
			}
			return runScheduled(ctx, refresh, func() error {
				return runOnce(ctx, cfg, logger, manifest, cmd.OutOrStdout(), observers...)
			}, logger)
		},
	}

	cmd.Flags().StringVar(&refresh, "refresh", "", "cron schedule for repeating the load, e.g. \"@every 30s\"")
	cmd.Flags().StringVar(&events, "events", "", "write lifecycle events to stderr as json or text")
	return cmd
}

// runOnce loads manifest with a fresh loader and prints the module table.
// It returns every error the loader raised.
func runOnce(ctx context.Context, cfg *scriptloader.Config, logger scriptloader.Logger, manifest string, out io.Writer, observers ...scriptloader.Observer) error {
	l, err := scriptloader.New(cfg, scriptloader.WithLogger(logger), scriptloader.WithContext(ctx))
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	for _, o := range observers {
		if err := l.RegisterObserver(o); err != nil {
			return err
		}
	}

	if _, err := l.ResolveManifest(manifest); err != nil {
		return err
	}
	loadErr := l.Wait(ctx)
	if err := l.RunApp(); err != nil {
		loadErr = errors.Join(loadErr, err)
	}
	loadErr = errors.Join(loadErr, l.Wait(ctx))

	if err := printModules(out, l); err != nil {
		return errors.Join(loadErr, err)
	}
	return loadErr
}

func printModules(out io.Writer, l *scriptloader.Loader) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATUS\tURL")
	for _, m := range l.Modules() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.FullName(), m.Status(), m.URL())
	}
	if l.Running() {
		fmt.Fprintln(tw, "app\trunning\t")
	}
	return tw.Flush()
}

// runScheduled runs job immediately and then on every tick of schedule until
// ctx is done. Overlapping ticks are skipped.
func runScheduled(ctx context.Context, schedule string, job func() error, logger scriptloader.Logger) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	var mu sync.Mutex
	tick := func() {
		if !mu.TryLock() {
			logger.Warn("Skipping refresh, previous load still running")
			return
		}
		defer mu.Unlock()
		if err := job(); err != nil {
			logger.Error("Load failed", "error", err)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, tick); err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	tick()
	c.Start()
	logger.Info("Refreshing on schedule", "schedule", schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
