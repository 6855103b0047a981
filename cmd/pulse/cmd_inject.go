package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mindmesh/pulse/internal/stimulus"
)

func newInjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inject [text]",
		Short: "Inject a stimulus into a running engine",
		Long: `Send one stimulus envelope to a running pulse instance.

By default the envelope goes to the control API. With --drop-dir it is
written as a JSON file into the watched drop directory instead, which
works without the API enabled.

Examples:
  pulse inject "door opened" --embedding 0.1,0.9,0.2
  pulse inject --graph aux --embedding 0.4,0.4 --priority 0.3
  pulse inject "alarm" --embedding 1,0 --interrupt --drop-dir /var/run/pulse/inbox`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graphName, _ := cmd.Flags().GetString("graph")
			embSpec, _ := cmd.Flags().GetString("embedding")
			priority, _ := cmd.Flags().GetFloat64("priority")
			interrupt, _ := cmd.Flags().GetBool("interrupt")
			private, _ := cmd.Flags().GetBool("private")
			scope, _ := cmd.Flags().GetString("scope")
			dropDir, _ := cmd.Flags().GetString("drop-dir")
			addr, _ := cmd.Flags().GetString("addr")

			embedding, err := parseEmbedding(embSpec)
			if err != nil {
				return err
			}

			env := stimulus.Envelope{
				ID:        uuid.NewString(),
				Graph:     graphName,
				Scope:     scope,
				Source:    "cli",
				Embedding: embedding,
				Priority:  priority,
				Private:   private,
				Interrupt: interrupt,
			}
			if len(args) == 1 {
				env.Text = args[0]
			}
			if err := env.Normalize(time.Now()); err != nil {
				return err
			}

			if dropDir != "" {
				return writeDropFile(dropDir, env)
			}
			return postStimulus(cmd, addr, env)
		},
	}

	cmd.Flags().String("graph", "main", "Target graph")
	cmd.Flags().String("embedding", "", "Comma-separated embedding values (required)")
	cmd.Flags().Float64("priority", 1.0, "Stimulus priority in [0,1]")
	cmd.Flags().Bool("interrupt", false, "Wake the engine immediately")
	cmd.Flags().Bool("private", false, "Mark the stimulus private")
	cmd.Flags().String("scope", "", "Optional entity scope hint")
	cmd.Flags().String("drop-dir", "", "Write to this drop directory instead of the API")
	cmd.Flags().String("addr", "localhost:7311", "Control API address")

	return cmd
}

func parseEmbedding(spec string) ([]float64, error) {
	if spec == "" {
		return nil, fmt.Errorf("--embedding is required")
	}
	parts := strings.Split(spec, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad embedding value %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

// writeDropFile lands the envelope atomically: write to a temp name, then
// rename, so the watcher never reads a partial file.
func writeDropFile(dir string, env stimulus.Envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+env.ID+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	final := filepath.Join(dir, env.ID+".json")
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return err
	}
	fmt.Printf("wrote %s\n", final)
	return nil
}

func postStimulus(cmd *cobra.Command, addr string, env stimulus.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	resp, err := http.Post("http://"+addr+"/api/stimuli", "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("inject failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		fmt.Println(strings.TrimSpace(string(body)))
	} else {
		fmt.Printf("accepted %s -> %s\n", env.ID, env.Graph)
	}
	return nil
}
