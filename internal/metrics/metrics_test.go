package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCommandMetrics(t *testing.T) {
	CommandsTotal.Reset()
	CommandDuration.Reset()

	CommandsTotal.WithLabelValues("LOGIN", "OK").Inc()
	CommandsTotal.WithLabelValues("FETCH", "OK").Inc()
	CommandsTotal.WithLabelValues("FETCH", "OK").Inc()
	CommandsTotal.WithLabelValues("SELECT", "NO").Inc()
	CommandDuration.WithLabelValues("FETCH").Observe(0.2)

	if got := testutil.ToFloat64(CommandsTotal.WithLabelValues("FETCH", "OK")); got != 2 {
		t.Errorf("FETCH OK = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(CommandsTotal); got != 3 {
		t.Errorf("CommandsTotal series = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(CommandDuration); got != 1 {
		t.Errorf("CommandDuration series = %v, want 1", got)
	}
}

func TestIdleEvents(t *testing.T) {
	IdleEvents.Reset()
	IdleEvents.WithLabelValues("exists").Add(3)

	expected := `
# HELP kamel_idle_events_total Mailbox change notifications received while idling, by event
# TYPE kamel_idle_events_total counter
kamel_idle_events_total{event="exists"} 3
`
	if err := testutil.CollectAndCompare(IdleEvents, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected collecting result:\n%s", err)
	}
}
