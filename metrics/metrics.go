package metrics

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/testfold/testfold/types"
)

const (
	MetricsNamespace = "testfold"
)

var (
	Debug bool = true

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_results_total",
		Help:      "Count of test results by reported state",
	}, []string{
		"test",
		"result",
	})

	testDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Execution time of the test body",
	}, []string{
		"test",
	})

	runTestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_total",
		Help:      "Number of tests processed in a run",
	}, []string{
		"run_id",
	})

	runProblemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_problems_total",
		Help:      "Number of problem outcomes in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of a run",
	}, []string{
		"run_id",
	})
)

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordTestResult counts one test outcome and stamps its body duration.
func RecordTestResult(uid string, result types.State, duration time.Duration) {
	if Debug {
		log.Debug("metric inc",
			"m", "test_results_total",
			"test", uid,
			"result", result)
	}
	testResultsTotal.WithLabelValues(uid, result.String()).Inc()
	if duration > 0 {
		testDuration.WithLabelValues(uid).Set(duration.Seconds())
	}
}

// RecordRun publishes the aggregate counters for a completed run.
func RecordRun(runID string, duration time.Duration, counts map[types.State]int) {
	total := 0
	problems := 0
	for state, n := range counts {
		total += n
		if state.IsProblem() {
			problems += n
		}
	}
	runTestsTotal.WithLabelValues(runID).Add(float64(total))
	runProblemsTotal.WithLabelValues(runID).Add(float64(problems))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
