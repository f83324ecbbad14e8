package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/provenance-updater/internal/app"
	"github.com/yungbote/provenance-updater/internal/bus"
	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/router"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	DryRun bool
}

// ReplayFailure describes one message that did not process cleanly.
type ReplayFailure struct {
	Source string
	Topic  string
	Code   domain.ErrorCode
	Err    error
}

// ReplaySummary tallies a replay run.
type ReplaySummary struct {
	Processed int
	ByCode    map[domain.ErrorCode]int
	Failures  []ReplayFailure
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay FILE...",
		Short: "Process recorded bus envelopes through the handlers",
		Long: `Replay reads envelopes ({"topic", "headers", "msg"}) from each file, either
one JSON document per line or a single JSON array, and processes them in order
through the same handlers the consumer uses.

With --dry-run the graph lives in memory and nothing is written to Neo4j;
upstream lookups still go to the configured build system and release tool.

Examples:
  provenance-updater replay captured.jsonl
  provenance-updater replay --dry-run -c dev.yaml fixtures/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "reconcile into an in-memory graph")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, files []string) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := app.New(ctx, cfg, log, app.Options{InMemoryGraph: opts.DryRun})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	summary := ReplaySummary{ByCode: map[domain.ErrorCode]int{}}
	for _, path := range files {
		msgs, err := readEnvelopeFile(path)
		if err != nil {
			return err
		}
		replay(ctx, a.Router, path, msgs, &summary)
	}

	printReplaySummary(cmd.OutOrStdout(), summary, opts.DryRun)
	if len(summary.Failures) > 0 {
		return fmt.Errorf("%d of %d messages failed", len(summary.Failures), summary.Processed)
	}
	return nil
}

func readEnvelopeFile(path string) ([]router.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	msgs, err := readEnvelopes(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return msgs, nil
}

// readEnvelopes accepts a JSON array of envelopes or one envelope per line.
// Messages without an id get a fresh one.
func readEnvelopes(r io.Reader) ([]router.Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decode envelope array: %w", err)
		}
	} else {
		sc := bufio.NewScanner(bytes.NewReader(trimmed))
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			raws = append(raws, append(json.RawMessage(nil), line...))
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]router.Message, 0, len(raws))
	for i, raw := range raws {
		msg, err := bus.DecodeEnvelope(raw, "")
		if err != nil {
			return nil, fmt.Errorf("envelope %d: %w", i+1, err)
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		out = append(out, msg)
	}
	return out, nil
}

func replay(ctx context.Context, p bus.Processor, source string, msgs []router.Message, summary *ReplaySummary) {
	for i, msg := range msgs {
		summary.Processed++
		err := p.Process(ctx, msg)
		code := domain.CodeOf(err)
		if err != nil && code == "" {
			code = domain.CodeInternal
		}
		if err == nil {
			code = "ok"
		}
		summary.ByCode[code]++
		if err != nil {
			summary.Failures = append(summary.Failures, ReplayFailure{
				Source: fmt.Sprintf("%s:%d", source, i+1),
				Topic:  msg.Topic,
				Code:   code,
				Err:    err,
			})
		}
	}
}

func printReplaySummary(w io.Writer, s ReplaySummary, dryRun bool) {
	mode := "graph"
	if dryRun {
		mode = "in-memory graph"
	}
	fmt.Fprintf(w, "replayed %d messages into the %s\n", s.Processed, mode)

	codes := make([]string, 0, len(s.ByCode))
	for c := range s.ByCode {
		codes = append(codes, string(c))
	}
	sort.Strings(codes)
	for _, c := range codes {
		fmt.Fprintf(w, "  %-24s %d\n", c, s.ByCode[domain.ErrorCode(c)])
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "FAIL %s %s: %v\n", f.Source, f.Topic, f.Err)
	}
}
