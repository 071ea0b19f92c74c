package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/GoCodeAlone/scriptloader"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var (
		dir      string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [manifest]",
		Short: "Reload a manifest whenever a script under the watched directory changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.BaseURL == "" {
				cfg.BaseURL = dir
			}
			manifest := ""
			if len(args) == 1 {
				manifest = args[0]
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return watchAndRun(ctx, dir, debounce, cfg.ScriptExtension, logger, func() error {
				return runOnce(ctx, cfg, logger, manifest, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "directory to watch")
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period before reloading")
	return cmd
}

// watchAndRun runs job, then again after every burst of changes to files
// with extension ext below dir, until ctx is done.
func watchAndRun(ctx context.Context, dir string, debounce time.Duration, ext string, logger scriptloader.Logger, job func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := addTree(watcher, dir); err != nil {
		return err
	}

	run := func() {
		if err := job(); err != nil {
			logger.Error("Load failed", "error", err)
		}
	}
	run()
	logger.Info("Watching for script changes", "dir", dir)

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						logger.Warn("Failed to watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if !strings.HasSuffix(event.Name, ext) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			logger.Debug("Script changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", "error", err)
		case <-timer.C:
			run()
		}
	}
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
