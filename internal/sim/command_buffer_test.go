package sim

import (
	"testing"

	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
	"github.com/ddm94/SlimyKitchenOnline/logging"
)

func TestCommandBufferWraparound(t *testing.T) {
	buffer := NewCommandBuffer(3, nil)
	cmds := []Command{
		{ActorID: "a", Type: CommandReady},
		{ActorID: "b", Type: CommandPause},
		{ActorID: "c", Type: CommandDeliver},
	}
	for _, cmd := range cmds {
		if !buffer.Push(cmd) {
			t.Fatalf("expected push to succeed for %+v", cmd)
		}
	}
	if buffer.Push(Command{ActorID: "overflow"}) {
		t.Fatalf("expected push to fail when buffer full")
	}
	drained := buffer.Drain()
	if len(drained) != len(cmds) {
		t.Fatalf("expected %d commands, got %d", len(cmds), len(drained))
	}
	for i, cmd := range drained {
		if cmd.ActorID != cmds[i].ActorID {
			t.Fatalf("expected drain order %v, got %v", cmds[i].ActorID, cmd.ActorID)
		}
	}
	if !buffer.Push(Command{ActorID: "d"}) {
		t.Fatalf("expected push to succeed after drain")
	}
	buffer.Drain()
	for _, id := range []string{"e", "f", "g"} {
		if !buffer.Push(Command{ActorID: id}) {
			t.Fatalf("expected push %s to succeed across the wrap point", id)
		}
	}
	wrapped := buffer.Drain()
	if len(wrapped) != 3 || wrapped[0].ActorID != "e" || wrapped[2].ActorID != "g" {
		t.Fatalf("unexpected order after wraparound: %+v", wrapped)
	}
}

func TestCommandBufferOverflowMetrics(t *testing.T) {
	metrics := &logging.Metrics{}
	buffer := NewCommandBuffer(1, telemetry.WrapMetrics(metrics))
	if !buffer.Push(Command{ActorID: "one"}) {
		t.Fatalf("expected initial push to succeed")
	}
	if buffer.Push(Command{ActorID: "two"}) {
		t.Fatalf("expected push to fail when capacity exceeded")
	}
	snapshot := metrics.Snapshot()
	if snapshot[commandBufferOverflowMetricKey] != 1 {
		t.Fatalf("expected one overflow, got %d", snapshot[commandBufferOverflowMetricKey])
	}
	if snapshot[commandBufferOccupancyMetricKey] != 1 {
		t.Fatalf("expected occupancy 1, got %d", snapshot[commandBufferOccupancyMetricKey])
	}
	drained := buffer.Drain()
	if len(drained) != 1 || drained[0].ActorID != "one" {
		t.Fatalf("unexpected drained commands: %+v", drained)
	}
	if buffer.Len() != 0 {
		t.Fatalf("expected empty buffer after drain")
	}
}
