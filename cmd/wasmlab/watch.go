package main

import (
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const watchDebounce = 300 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch <source.ts>",
	Short: "Recompile and rerun a guest script whenever it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()
		// Watch the directory: editors often replace the file on save
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return err
		}

		rebuild := func() {
			res, err := compileFile(ctx, e.compiler, path)
			if err != nil {
				return
			}
			if _, err := runOnce(ctx, e, res.Binary, runRID, runPayload); err != nil {
				pterm.Error.Println(err)
			}
			pterm.Info.Printf("watching %s\n", path)
		}
		rebuild()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce = time.After(watchDebounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				pterm.Warning.Printf("watch error: %v\n", err)
			case <-debounce:
				debounce = nil
				rebuild()
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&runPayload, "payload", "{}", "JSON payload returned by GetDataByRID")
	watchCmd.Flags().Int32Var(&runRID, "rid", 1, "record id passed to the entry point")
	watchCmd.Flags().StringVar(&runEntry, "entry", "", "entry point (default from config)")
}

