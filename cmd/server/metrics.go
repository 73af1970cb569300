package main

import (
	"fmt"
	"io"

	"strider.ai/internal/persistence/indexdb"
	"strider.ai/internal/sim/sandbox"
	"strider.ai/internal/transport/ws"
)

type metricsView struct {
	World  sandbox.Stats
	Server ws.Stats
	StepMS float64
	Index  *indexdb.Stats
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(w io.Writer, m metricsView) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %v\n", name, v)
	}
	counter := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %v\n", name, v)
	}

	gauge("strider_sandbox_agents", "Agents in the sandbox.", m.World.Agents)
	gauge("strider_sandbox_boxes", "Obstacle boxes in the sandbox.", m.World.Boxes)
	counter("strider_sandbox_casts_total", "Ray casts answered.", m.World.Casts)
	counter("strider_sandbox_steps_total", "Sandbox steps.", m.World.Steps)
	counter("strider_sandbox_escalations_total", "Segments escalated to the global solver.", m.World.Escalations)
	gauge("strider_sandbox_step_ms", "Last step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

	gauge("strider_ws_connections", "Open websocket sessions.", m.Server.Connections)
	counter("strider_ws_requests_total", "REQ messages dispatched.", m.Server.Requests)
	counter("strider_ws_path_updates_dropped_total", "PATH_UPDATE pushes dropped on a full queue.", m.Server.DroppedUpdates)

	if m.Index == nil {
		return
	}
	gauge("strider_index_queue_depth", "Index writer backlog.", m.Index.QueueDepth)
	gauge("strider_index_queue_capacity", "Index writer queue capacity.", m.Index.QueueCapacity)
	counter("strider_index_written_total", "Rows committed to the index.", m.Index.Written)
	counter("strider_index_dropped_total", "Escalations dropped by the index writer.", m.Index.DropEscalationTotal)
	counter("strider_index_write_errors_total", "Index write errors.", m.Index.WriteErrorTotal)
}
