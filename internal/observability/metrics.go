package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// toolCallsTotal counts dispatched tool calls.
	// Labels: tool, outcome (data, plan, unknown_tool, invalid_arguments, error)
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesagent",
		Subsystem: "tools",
		Name:      "calls_total",
		Help:      "Tool calls dispatched by tool and outcome",
	}, []string{"tool", "outcome"})

	plansProposedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesagent",
		Subsystem: "plans",
		Name:      "proposed_total",
		Help:      "Action plans proposed by intent",
	}, []string{"intent"})

	// Labels: status (success, error, rolled_back), code
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesagent",
		Subsystem: "plans",
		Name:      "executions_total",
		Help:      "Plan executions by status and code",
	}, []string{"status", "code"})

	completionRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesagent",
		Subsystem: "completion",
		Name:      "retries_total",
		Help:      "Completion requests retried by fallback mode",
	}, []string{"mode"})

	loopIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "salesagent",
		Subsystem: "completion",
		Name:      "loop_iterations",
		Help:      "Completion loop iterations per turn",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	turnLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "salesagent",
		Subsystem: "converse",
		Name:      "turn_latency_seconds",
		Help:      "Wall-clock time of one conversational turn",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"result"})
)

func RecordToolCall(tool, outcome string) {
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func RecordPlanProposed(intent string) {
	plansProposedTotal.WithLabelValues(intent).Inc()
}

func RecordExecution(status, code string) {
	executionsTotal.WithLabelValues(status, code).Inc()
}

func RecordCompletionRetry(mode string) {
	completionRetriesTotal.WithLabelValues(mode).Inc()
}

func RecordLoopIterations(n int) {
	loopIterations.Observe(float64(n))
}

// RecordTurn records a turn's duration. result is answer, plan or error.
func RecordTurn(result string, seconds float64) {
	turnLatencySeconds.WithLabelValues(result).Observe(seconds)
}
