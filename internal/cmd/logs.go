package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/baton/internal/config"
	"github.com/Iron-Ham/baton/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View and filter baton logs",
	Long: `View and filter the structured logs written by baton, including rotated
backups.

Examples:
  # Show the last 50 entries
  baton logs

  # Everything one agent logged in the last hour
  baton logs --agent doubler --since 1h -n 0

  # Lock contention only
  baton logs --lock shared --level warn

  # Handler failures for one event, as JSON
  baton logs --event doubler_complete --format json

  # Follow new entries as they are written
  baton logs -f`,
	RunE: runLogs,
}

var (
	logsDir    string
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsAgent  string
	logsLock   string
	logsEvent  string
	logsGrep   string
	logsFormat string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsDir, "dir", "", "Log directory (default: logging.dir)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsAgent, "agent", "", "Only entries for this agent")
	logsCmd.Flags().StringVar(&logsLock, "lock", "", "Only entries for this resource lock")
	logsCmd.Flags().StringVar(&logsEvent, "event", "", "Only entries for this event name")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format (text/json)")
}

func buildLogFilter(now time.Time) (logging.LogFilter, error) {
	filter := logging.LogFilter{
		Level:    logsLevel,
		Agent:    logsAgent,
		Lock:     logsLock,
		Event:    logsEvent,
		Contains: logsGrep,
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return filter, fmt.Errorf("invalid --since duration %q: %w", logsSince, err)
		}
		filter.Since = now.Add(-d)
	}
	return filter, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir := logsDir
	if dir == "" {
		dir = config.Get().Logging.ResolveDir()
	}

	filter, err := buildLogFilter(time.Now())
	if err != nil {
		return err
	}

	entries, err := logging.ReadLogs(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(out, "No logs found in %s\n", dir)
		if !logsFollow {
			return nil
		}
	case err != nil:
		return fmt.Errorf("failed to read logs: %w", err)
	}

	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}
	if err := logging.WriteEntries(out, entries, logsFormat); err != nil {
		return err
	}

	if !logsFollow {
		return nil
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return followLogs(ctx, out, dir, filter, logsFormat)
}

// logFollower prints entries appended to the live log file since the last
// drain.
type logFollower struct {
	path    string
	offset  int64
	partial []byte // trailing bytes of an unfinished line
	filter  logging.LogFilter
	format  string
	w       io.Writer
}

func (f *logFollower) reset() {
	f.offset = 0
	f.partial = nil
}

func (f *logFollower) drain() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < f.offset {
		// Truncated or replaced by rotation.
		f.reset()
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.offset += int64(len(data))

	data = append(f.partial, data...)
	lines := bytes.Split(data, []byte{'\n'})
	f.partial = bytes.Clone(lines[len(lines)-1])

	var entries []logging.LogEntry
	for _, line := range lines[:len(lines)-1] {
		if e, err := logging.ParseEntry(string(line)); err == nil {
			entries = append(entries, e)
		}
	}
	entries = logging.FilterLogs(entries, f.filter)
	if len(entries) == 0 {
		return nil
	}
	return logging.WriteEntries(f.w, entries, f.format)
}

func followLogs(ctx context.Context, w io.Writer, dir string, filter logging.LogFilter, format string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	f := &logFollower{
		path:   filepath.Join(dir, logging.LogFileName),
		filter: filter,
		format: format,
		w:      w,
	}
	if info, err := os.Stat(f.path); err == nil {
		f.offset = info.Size()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Has(fsnotify.Create) {
				f.reset()
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := f.drain(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
}
