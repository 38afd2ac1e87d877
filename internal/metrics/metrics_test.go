package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistryExposesUpdatedValues(t *testing.T) {
	r := NewRegistry()
	r.ObserveTick("Io", 0.01)
	r.SetWriteIndex("temp", 42)
	r.AddSamplesLost("temp", 3)
	r.IncTriggerFired("gate-rising")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{
		"vxcore_worker_tick_duration_seconds",
		"vxcore_attribute_write_index",
		"vxcore_attribute_samples_lost_total",
		"vxcore_trigger_fired_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
