package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mini-docker/mini-docker/state"
)

// printContainerTable is the fixed-width `ps` table; §4.12 scopes real
// formatting engines out, so this is the minimal column writer the
// default `--format table` needs.
func printContainerTable(w io.Writer, states []*state.ContainerState) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPID")
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", st.ID[:12], st.Name, st.Status, st.PID)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
