// Command stacksense-eval derives a snapshot offline from a rule pack and a
// JSON array of intake logs, without a store or server.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/scrypster/stacksense/internal/engine"
	"github.com/scrypster/stacksense/internal/rules"
	"github.com/scrypster/stacksense/pkg/types"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("stacksense-eval: %v", err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("stacksense-eval", flag.ContinueOnError)
	rulesPath := fs.String("rules", "configs/rulepack.yaml", "Path to the YAML or TOML rule pack")
	logsPath := fs.String("logs", "-", "Path to a JSON array of log entries (- for stdin)")
	nowFlag := fs.String("now", "", "Evaluation instant in RFC3339 (default: current time)")
	tz := fs.String("tz", "Local", "Timezone whose calendar day bounds today")
	userID := fs.String("user", "", "Only evaluate logs for this user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pack, err := rules.LoadPack(*rulesPath)
	if err != nil {
		return err
	}
	for _, warning := range pack.Warnings {
		log.Printf("rules: warning: %s", warning)
	}

	loc := time.Local
	if *tz != "Local" {
		if loc, err = time.LoadLocation(*tz); err != nil {
			return fmt.Errorf("unknown timezone %q: %w", *tz, err)
		}
	}

	now := time.Now().In(loc)
	if *nowFlag != "" {
		if now, err = time.Parse(time.RFC3339, *nowFlag); err != nil {
			return fmt.Errorf("invalid -now: %w", err)
		}
		now = now.In(loc)
	}

	logs, err := readLogs(*logsPath, stdin)
	if err != nil {
		return err
	}
	if *userID != "" {
		filtered := logs[:0]
		for _, l := range logs {
			if l.UserID == *userID {
				filtered = append(filtered, l)
			}
		}
		logs = filtered
	}

	snap := engine.DeriveStateWithOptions(logs, pack.Snapshot, now, engine.DeriveOptions{Location: loc})

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func readLogs(path string, stdin io.Reader) ([]types.LogEntry, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open logs: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var logs []types.LogEntry
	if err := json.NewDecoder(r).Decode(&logs); err != nil {
		return nil, fmt.Errorf("failed to decode logs: %w", err)
	}
	for i, l := range logs {
		if !engine.IsKnownUnit(l.Unit) {
			return nil, fmt.Errorf("log %d: unknown unit %q", i, l.Unit)
		}
	}
	return logs, nil
}
