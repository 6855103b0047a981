package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mindmesh/pulse/internal/engine"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			resp, err := http.Get("http://" + addr + "/api/status")
			if err != nil {
				return fmt.Errorf("is pulse running? %w", err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status failed: %s", resp.Status)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				fmt.Println(string(body))
				return nil
			}

			var statuses map[string]engine.Status
			if err := json.Unmarshal(body, &statuses); err != nil {
				return err
			}

			names := make([]string, 0, len(statuses))
			for name := range statuses {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				st := statuses[name]
				mode := "normal"
				if st.Safety.Degraded {
					mode = "degraded (" + st.Safety.Reason + ")"
				}
				fmt.Printf("%s: tick %d, %d nodes (%d active), %d entities, energy %.3f\n",
					name, st.Tick, st.Nodes, st.FrontierSize, st.Entities, st.TotalEnergy)
				fmt.Printf("  rho %.3f (%s), interval %s, dt %.2fs, mode %s\n",
					st.Rho, st.CritState, st.Interval.Interval, st.Interval.Dt, mode)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "localhost:7311", "Control API address")
	return cmd
}
