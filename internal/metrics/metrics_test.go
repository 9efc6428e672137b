package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStage(t *testing.T) {
	r := NewRun()

	r.ObserveStage("orders", 120, 3, 1500*time.Millisecond)
	r.ObserveStage("orders", 10, 0, 2*time.Second)

	if got := testutil.ToFloat64(r.RowsTotal.WithLabelValues("orders", "inserted")); got != 130 {
		t.Errorf("Expected 130 inserted rows, got %v", got)
	}
	if got := testutil.ToFloat64(r.RowsTotal.WithLabelValues("orders", "skipped")); got != 3 {
		t.Errorf("Expected 3 skipped rows, got %v", got)
	}
	if got := testutil.ToFloat64(r.StageDuration.WithLabelValues("orders")); got != 2 {
		t.Errorf("Expected duration of the last execution, got %v", got)
	}
}

func TestObserveFailure(t *testing.T) {
	r := NewRun()
	r.ObserveFailure("alerts", "transient")

	if got := testutil.ToFloat64(r.StageFailures.WithLabelValues("alerts", "transient")); got != 1 {
		t.Errorf("Expected 1 failure, got %v", got)
	}
}

func TestPush(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, req.Body)
		body = buf.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRun()
	r.ObserveStage("stores", 5, 0, time.Second)

	if err := r.Push(srv.URL, "hotdog-etl", "run-all"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if path != "/metrics/job/hotdog-etl/mode/run-all" {
		t.Errorf("Unexpected push path %s", path)
	}
	if !strings.Contains(body, "hotdog_etl_rows_total") {
		t.Error("Expected rows_total in the pushed body")
	}
}

func TestPushWithoutGateway(t *testing.T) {
	if err := NewRun().Push("", "hotdog-etl", "run-all"); err != nil {
		t.Errorf("Expected no-op, got %v", err)
	}
}
