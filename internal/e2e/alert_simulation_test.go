package e2e

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

type alertScenario struct {
	name       string
	severity   string
	threshold  float64
	actual     float64
	window     time.Duration
	runbookRef string
}

func TestAlertSimulationProducesFiringAndResolvedLogs(t *testing.T) {
	scenarios := []alertScenario{
		{
			name:       "JobFailureRateHigh",
			severity:   "warning",
			threshold:  0.1,
			actual:     0.18,
			window:     15 * time.Minute,
			runbookRef: "docs/runbook-ops-auth.md#job-failure-rate",
		},
		{
			name:       "MailDeliveryStalled",
			severity:   "critical",
			threshold:  1,
			actual:     0,
			window:     30 * time.Minute,
			runbookRef: "docs/runbook-ops-auth.md#mail-delivery-stalled",
		},
		{
			name:       "PermissionWarmupMissing",
			severity:   "warning",
			threshold:  1,
			actual:     0,
			window:     26 * time.Hour,
			runbookRef: "docs/runbook-ops-auth.md#permission-warmup-missing",
		},
	}

	var logBuilder strings.Builder
	for _, scenario := range scenarios {
		logBuilder.WriteString(renderAlertLog("FIRING", scenario))
		logBuilder.WriteString(renderAlertLog("RESOLVED", scenario))
	}

	logOutput := logBuilder.String()
	for _, scenario := range scenarios {
		firing := renderAlertLog("FIRING", scenario)
		if !strings.Contains(logOutput, firing) {
			t.Fatalf("expected log to contain firing entry for %s", scenario.name)
		}
		resolved := renderAlertLog("RESOLVED", scenario)
		if !strings.Contains(logOutput, resolved) {
			t.Fatalf("expected log to contain resolved entry for %s", scenario.name)
		}
	}
}

func renderAlertLog(state string, scenario alertScenario) string {
	return fmt.Sprintf("%s %s severity=%s actual=%.2f threshold=%.2f window=%s runbook=%s\n",
		state, scenario.name, scenario.severity, scenario.actual, scenario.threshold, scenario.window, scenario.runbookRef)
}
