package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed line of a baton log file.
type LogEntry struct {
	Timestamp    time.Time      `json:"time"`
	Level        string         `json:"level"`
	Message      string         `json:"msg"`
	Agent        string         `json:"agent,omitempty"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Lock         string         `json:"lock,omitempty"`
	Event        string         `json:"event,omitempty"`
	Attrs        map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects entries; set fields are combined with AND.
type LogFilter struct {
	// Level keeps entries at or above this level.
	Level string
	// Since keeps entries at or after this time.
	Since time.Time
	Agent string
	Lock  string
	// Event matches the "event" attribute written by the bus on handler failures.
	Event    string
	Contains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadLogs parses the live log file in dir together with any uncompressed
// rotated backups. Malformed lines are skipped. Entries are returned in
// timestamp order.
func ReadLogs(dir string) ([]LogEntry, error) {
	live := filepath.Join(dir, LogFileName)
	backups, _ := filepath.Glob(live + ".[0-9]*")

	var entries []LogEntry
	found := false
	for _, path := range append(backups, live) {
		if strings.HasSuffix(path, ".gz") {
			continue
		}
		got, err := readLogFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found = true
		entries = append(entries, got...)
	}
	if !found {
		return nil, fmt.Errorf("no log file found in %s: %w", dir, os.ErrNotExist)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func readLogFile(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := ParseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return entries, nil
}

// ParseEntry parses one JSON log line.
func ParseEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{Attrs: make(map[string]any)}
	take := func(key string) string {
		s, _ := raw[key].(string)
		delete(raw, key)
		return s
	}

	if t, err := time.Parse(time.RFC3339Nano, take("time")); err == nil {
		entry.Timestamp = t
	}
	entry.Level = take("level")
	entry.Message = take("msg")
	entry.Agent = take("agent")
	entry.InvocationID = take("invocation_id")
	entry.Lock = take("lock")
	entry.Event = take("event")
	for k, v := range raw {
		entry.Attrs[k] = v
	}
	return entry, nil
}

// FilterLogs returns the entries matching filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	var out []LogEntry
	for _, e := range entries {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (f LogFilter) matches(e LogEntry) bool {
	if f.Level != "" {
		want, okWant := levelOrder[strings.ToUpper(f.Level)]
		got, okGot := levelOrder[e.Level]
		if okWant && okGot && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if f.Agent != "" && e.Agent != f.Agent {
		return false
	}
	if f.Lock != "" && e.Lock != f.Lock {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.Contains != "" && !strings.Contains(e.Message, f.Contains) {
		return false
	}
	return true
}

// WriteEntries renders entries to w as "json" (an indented array) or
// "text" (one line per entry).
func WriteEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text", "":
		for _, e := range entries {
			if _, err := io.WriteString(w, formatText(e)+"\n"); err != nil {
				return fmt.Errorf("failed to write text entry: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: json, text)", format)
	}
}

func formatText(e LogEntry) string {
	parts := []string{
		"[" + e.Timestamp.Format("2006-01-02 15:04:05.000") + "]",
		e.Level, "-", e.Message,
	}

	var ctx []string
	if e.Agent != "" {
		ctx = append(ctx, "agent="+e.Agent)
	}
	if e.InvocationID != "" {
		ctx = append(ctx, "invocation="+e.InvocationID)
	}
	if e.Lock != "" {
		ctx = append(ctx, "lock="+e.Lock)
	}
	if e.Event != "" {
		ctx = append(ctx, "event="+e.Event)
	}
	if len(ctx) > 0 {
		parts = append(parts, "("+strings.Join(ctx, ", ")+")")
	}
	if len(e.Attrs) > 0 {
		b, _ := json.Marshal(e.Attrs)
		parts = append(parts, string(b))
	}
	return strings.Join(parts, " ")
}
