package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Checkpoint is an append-only JSONL log of completed results, enabling
// resumable runs. Append failures are logged and never abort the run; a
// truncated or corrupted trailing line is dropped on load.
type Checkpoint struct {
	path   string
	logger *slog.Logger
}

// NewCheckpoint creates a checkpoint log backed by the given file path.
func NewCheckpoint(path string, logger *slog.Logger) *Checkpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checkpoint{path: path, logger: logger.With("component", "checkpoint")}
}

// Path returns the backing file path.
func (c *Checkpoint) Path() string {
	return c.path
}

// Append serializes each result as one JSON line and appends it to the
// log, creating parent directories if needed. Write failures are logged
// and swallowed: losing a durability point must not fail the run.
func (c *Checkpoint) Append(results []*Result) {
	if len(results) == 0 {
		return
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.logger.Warn("failed to create checkpoint directory", "dir", dir, "error", err)
			return
		}
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.Warn("failed to open checkpoint file", "path", c.path, "error", err)
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			c.logger.Warn("failed to encode checkpoint record", "index", r.GlobalIndex, "error", err)
			return
		}
	}
	if err := w.Flush(); err != nil {
		c.logger.Warn("failed to flush checkpoint", "path", c.path, "error", err)
	}
}

// Load reads the full log back. A missing file yields an empty result
// set; unparseable lines (e.g. a truncated final line from a crashed
// run) are skipped.
func (c *Checkpoint) Load() ([]*Result, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	var results []*Result
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Result
		if err := json.Unmarshal(line, &r); err != nil {
			c.logger.Warn("skipping corrupted checkpoint line", "error", err)
			continue
		}
		results = append(results, &r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	return results, nil
}
