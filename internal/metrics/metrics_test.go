package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestEscrowCounters(t *testing.T) {
	before := counterValue(t, EscrowCreatedTotal)
	EscrowCreatedTotal.Inc()
	if got := counterValue(t, EscrowCreatedTotal); got != before+1 {
		t.Errorf("EscrowCreatedTotal = %v, want %v", got, before+1)
	}

	release := EscrowReleasesTotal.WithLabelValues("partial")
	before = counterValue(t, release)
	release.Inc()
	if got := counterValue(t, release); got != before+1 {
		t.Errorf("EscrowReleasesTotal{partial} = %v, want %v", got, before+1)
	}
}

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
	}
	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
