package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/domain"
	"github.com/jaakkos/cowork/internal/policy"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a line whenever the workspace changes",
	Long: `Watch the notify signal file the server writes on every push and print
what changed. Wakes on file events, with a poll fallback.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	pol := policy.New(cfg)
	base, err := baseURL()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", headerStyle.Render("watching"), dimStyle.Render(pol.SignalFilePath()))

	watcher := app.NewSignalWatcher(pol.SignalFilePath(), log.New(io.Discard, "", 0), 5*time.Second)
	var lastIntent int
	err = watcher.Watch(ctx, func(version uint64) {
		var cs app.ChangeSet
		if err := getJSON(fmt.Sprintf("%s/api/changes?since=0", base), &cs); err != nil {
			fmt.Fprintf(out, "%s v%d %s\n", dimStyle.Render(time.Now().Format("15:04:05")), version, badStyle.Render(err.Error()))
			return
		}
		lastIntent = printChange(out, cs, lastIntent)
	})
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// printChange writes a summary line plus any intents newer than lastIntent
// and returns the newest intent id seen.
func printChange(w io.Writer, cs app.ChangeSet, lastIntent int) int {
	working := 0
	for _, a := range cs.Agents {
		if a.Status == domain.AgentWorking {
			working++
		}
	}
	fmt.Fprintf(w, "%s v%d  %d agent(s), %d working, %d lock(s), %d work item(s)\n",
		dimStyle.Render(time.Now().Format("15:04:05")), cs.Version,
		len(cs.Agents), working, len(cs.Locks), len(cs.WorkQueue))
	for _, in := range cs.Intents {
		if in.ID <= lastIntent {
			continue
		}
		fmt.Fprintf(w, "    %s %s: %s\n", okStyle.Render(string(in.Action)), in.AgentID, in.Description)
		lastIntent = in.ID
	}
	return lastIntent
}
