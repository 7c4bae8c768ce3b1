package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const maxLineBytes = 1 << 20

type commandLine struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// commandSink receives each parsed command.
type commandSink func(ctx context.Context, name string, payload any) error

// readCommands feeds every line of r to sink until EOF or ctx is done.
// Malformed lines and rejected commands are logged and skipped.
func readCommands(ctx context.Context, r io.Reader, sink commandSink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var cmd commandLine
		if err := json.Unmarshal([]byte(text), &cmd); err != nil {
			slog.Warn("[Input] Malformed command line", "line", line, "error", err)
			continue
		}
		if cmd.Command == "" {
			slog.Warn("[Input] Command line without command", "line", line)
			continue
		}

		var payload any
		if len(cmd.Payload) > 0 {
			payload = cmd.Payload
		}
		if err := sink(ctx, cmd.Command, payload); err != nil {
			slog.Warn("[Input] Command rejected", "line", line, "command", cmd.Command, "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}
