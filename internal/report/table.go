// Package report renders pipeline.Snapshot and pipeline.CycleResult values
// for a human or for a spreadsheet, per SPEC_FULL.md §4.10. It only reads
// Snapshot/CycleResult fields; it never touches a Pipeline directly.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/fluxmesh/throttlepipe/pipeline"
)

// WriteTable renders snap as a fixed-width aligned text table: one row per
// service, one Incoming/Allocated/CurrentCapacity column group per schema
// name (schemas sorted alphabetically so column order is deterministic).
func WriteTable(w io.Writer, snap pipeline.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	schemaNames := collectSchemaNames(snap)

	fmt.Fprintf(tw, "PHASE: %s\n", snap.Phase)
	fmt.Fprint(tw, "SERVICE\tSTATUS\tACTION")
	for _, s := range schemaNames {
		fmt.Fprintf(tw, "\t%s.in\t%s.alloc\t%s.cap", s, s, s)
	}
	fmt.Fprintln(tw)

	for _, svc := range snap.Services {
		fmt.Fprintf(tw, "%s\t%s\t%s", svc.Name, svc.Status, svc.Action)
		for _, s := range schemaNames {
			fmt.Fprintf(tw, "\t%.2f\t%.2f\t%.2f", svc.Incoming[s], svc.Allocated[s], svc.CurrentCapacity[s])
		}
		fmt.Fprintln(tw)
	}

	return tw.Flush()
}

// WriteOverloadPaths renders the dependency-path report of spec.md §4.7
// step (iii) as an indented text block.
func WriteOverloadPaths(w io.Writer, paths []pipeline.OverloadPath) error {
	if len(paths) == 0 {
		_, err := fmt.Fprintln(w, "no overloaded slots")
		return err
	}
	for _, p := range paths {
		if _, err := fmt.Fprintf(w, "%s/%s ratio=%.2f upstream=%v\n", p.Service, p.Schema, p.Ratio, p.Chain); err != nil {
			return err
		}
	}
	return nil
}

func collectSchemaNames(snap pipeline.Snapshot) []string {
	seen := make(map[string]bool)
	var names []string
	for _, svc := range snap.Services {
		for s := range svc.CurrentCapacity {
			if !seen[s] {
				seen[s] = true
				names = append(names, s)
			}
		}
	}
	sort.Strings(names)
	return names
}
