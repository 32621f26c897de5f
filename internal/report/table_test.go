package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fluxmesh/throttlepipe/pipeline"
)

func sampleSnapshot() pipeline.Snapshot {
	return pipeline.Snapshot{
		Phase: "crystallized",
		Services: []pipeline.ServiceSnapshot{
			{
				Name:            "Processor",
				Status:          pipeline.StatusOverloaded,
				Action:          pipeline.ActionSlowdown,
				CurrentCapacity: map[string]float64{"S1": 80},
				Incoming:        map[string]float64{"S1": 100},
				Allocated:       map[string]float64{"S1": 80},
			},
		},
	}
}

func TestWriteTable_IncludesPhaseAndServiceRow(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("WriteTable returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "crystallized") {
		t.Errorf("output missing phase name: %q", out)
	}
	if !strings.Contains(out, "Processor") {
		t.Errorf("output missing service name: %q", out)
	}
	if !strings.Contains(out, "OVERLOADED") {
		t.Errorf("output missing status: %q", out)
	}
}

func TestWriteOverloadPaths_EmptyPrintsNoneMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOverloadPaths(&buf, nil); err != nil {
		t.Fatalf("WriteOverloadPaths returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "no overloaded slots") {
		t.Errorf("expected empty-case message, got %q", buf.String())
	}
}

func TestWriteOverloadPaths_RendersChain(t *testing.T) {
	var buf bytes.Buffer
	paths := []pipeline.OverloadPath{
		{Service: "Processor", Schema: "S1", Ratio: 0.2, Chain: []string{"Source"}},
	}
	if err := WriteOverloadPaths(&buf, paths); err != nil {
		t.Fatalf("WriteOverloadPaths returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "Processor/S1") {
		t.Errorf("expected service/schema in output, got %q", buf.String())
	}
}
