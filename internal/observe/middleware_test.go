package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// controlServer wraps a mux shaped like the app's control server.
func controlServer(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := useTracer(t)
	origProp := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(origProp) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") == "boom" {
			http.Error(w, "store down", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Trace-Seen", CorrelationID(r.Context()))
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = conn.Write([]byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"))
		_ = conn.Close()
	})
	return Middleware(m)(mux), reader, exp
}

func serve(h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_TraceHeader(t *testing.T) {
	h, _, _ := controlServer(t)

	rec := serve(h, "/history", nil)
	id := rec.Header().Get(TraceHeader)
	if len(id) != 32 {
		t.Fatalf("%s = %q, want a trace id", TraceHeader, id)
	}
	if seen := rec.Header().Get("Trace-Seen"); seen != id {
		t.Errorf("handler saw trace %q, response carries %q", seen, id)
	}
}

func TestMiddleware_JoinsCallerTrace(t *testing.T) {
	h, _, exp := controlServer(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	rec := serve(h, "/history", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})
	if got := rec.Header().Get(TraceHeader); got != traceID {
		t.Errorf("%s = %q, want caller's %q", TraceHeader, got, traceID)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || !spans[0].Parent.IsRemote() {
		t.Fatalf("spans = %d, want one child of the remote caller", len(spans))
	}
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	h, _, exp := controlServer(t)

	serve(h, "/history?limit=boom", nil)
	serve(h, "/nope", nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Name != "HTTP GET /history" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("500 span status = %v, want error", spans[0].Status.Code)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusInternalServerError {
		t.Errorf("status attribute = %d, want 500", status)
	}
	if spans[1].Name != "HTTP "+unmatchedRoute {
		t.Errorf("unmatched span name = %q", spans[1].Name)
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	h, reader, _ := controlServer(t)

	serve(h, "/healthz", nil)
	serve(h, "/history?limit=1", nil)
	serve(h, "/history?limit=2", nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "miniexplorer.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want histogram", met.Data)
	}

	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[route.AsString()+" "+status.AsString()] += dp.Count
	}
	if counts["GET /history 200"] != 2 || counts["GET /healthz 200"] != 1 {
		t.Errorf("counts by route = %v", counts)
	}
}

func TestMiddleware_PassesWebSocketHijack(t *testing.T) {
	h, _, exp := controlServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want 101", resp.StatusCode)
	}

	// The span ends after the client has its response.
	deadline := time.Now().Add(time.Second)
	for len(exp.GetSpans()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" && a.Value.AsInt64() != http.StatusSwitchingProtocols {
			t.Errorf("status attribute = %d, want 101", a.Value.AsInt64())
		}
	}
}
