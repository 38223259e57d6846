package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/pkg/config"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail server logs",
	Long: `Display and optionally follow the server log file named by
logging.output in the configuration.

Examples:
  # Last 100 lines
  dittosmb logs

  # Follow
  dittosmb logs -f -n 20

  # Entries since a point in time
  dittosmb logs --since 2024-01-15T10:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since this RFC3339 time")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := cfg.Logging.Output
	switch strings.ToLower(path) {
	case "stdout", "stderr":
		return fmt.Errorf("server logs to %s, not a file\nSet logging.output to a file path to use this command", path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s", path)
	}

	var since time.Time
	if logsSince != "" {
		if since, err = time.Parse(time.RFC3339, logsSince); err != nil {
			return fmt.Errorf("invalid --since format (use RFC3339): %w", err)
		}
	}

	out := cmd.OutOrStdout()
	offset, err := tailLines(out, path, logsLines, since)
	if err != nil {
		return err
	}
	if !logsFollow {
		return nil
	}
	return followLog(out, path, offset)
}

// tailLines prints the last n lines not older than since and returns the
// file size it read up to.
func tailLines(w io.Writer, path string, n int, since time.Time) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if ts := lineTime(line); !ts.IsZero() && ts.Before(since) {
				continue
			}
		}
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error reading log file: %w", err)
	}
	for _, line := range ring {
		_, _ = fmt.Fprintln(w, line)
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// followLog streams appended lines until interrupted. A truncated or
// recreated file is read again from the start.
func followLog(w io.Writer, path string, offset int64) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", path)

	for {
		select {
		case <-sigCh:
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Write):
				if offset, err = copyFrom(w, path, offset); err != nil {
					return err
				}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				// Log rotated; wait for the new file.
				_ = watcher.Remove(path)
				if err := waitForFile(watcher, path); err != nil {
					return err
				}
				offset = 0
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func copyFrom(w io.Writer, path string, offset int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return offset, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return offset, err
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	n, err := io.Copy(w, f)
	return offset + n, err
}

func waitForFile(watcher *fsnotify.Watcher, path string) error {
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(path); err == nil {
			return watcher.Add(path)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("log file %s disappeared", path)
}

// lineTime extracts the timestamp of a text ("2006-01-02 15:04:05 ...",
// optionally bracketed) or JSON ({"time":...}) log line.
func lineTime(line string) time.Time {
	if strings.HasPrefix(line, "{") {
		var entry struct {
			Time time.Time `json:"time"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			return entry.Time
		}
		return time.Time{}
	}

	s := strings.TrimPrefix(line, "[")
	const layout = "2006-01-02 15:04:05"
	if len(s) < len(layout) {
		return time.Time{}
	}
	t, err := time.ParseInLocation(layout, s[:len(layout)], time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
