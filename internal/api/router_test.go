package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelrelay/internal/api/middleware"
	"github.com/orrn/labelrelay/internal/config"
	"github.com/orrn/labelrelay/internal/core"
	"github.com/orrn/labelrelay/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const label = "^XA^FO20,20^A0N,40,40^FDPart 1042^FS^XZ"

type testEnv struct {
	router       *gin.Engine
	printerA     *httptest.Server
	printerB     *httptest.Server
	printerCalls atomic.Int32
	lastBody     atomic.Value
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	printer := func() *httptest.Server {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			env.printerCalls.Add(1)
			env.lastBody.Store(string(body))
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(s.Close)
		return s
	}
	env.printerA = printer()
	env.printerB = printer()

	reg, err := core.NewRegistry([]core.PrinterRecord{
		{Address: hostPort(env.printerA), RoutingKeys: []string{"1", "2"}},
		{Address: hostPort(env.printerB), RoutingKeys: []string{"4"}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	logger := logging.Discard()
	client := &http.Client{}
	dispatcher := core.NewDispatcher(reg,
		core.NewAcquirer(client, core.AcquirerConfig{Matcher: core.SubstringMatcher("carbon")}, logger),
		client, core.DispatcherConfig{Timeout: time.Second}, logger)

	env.router = NewRouter(RouterDeps{
		Dispatcher: dispatcher,
		Registry:   reg,
		DevicePath: "/pstprnt",
		Logger:     logger,
	})
	return env
}

func hostPort(s *httptest.Server) string {
	return strings.TrimPrefix(s.URL, "http://")
}

func (e *testEnv) post(t *testing.T, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/print", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return w, decoded
}

func TestPrint_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"zpl": label, "workCenterId": "4"})
	w, resp := env.post(t, string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	data := resp["data"].(map[string]any)
	if data["zpl"] != label || data["workCenterId"] != "4" || data["zplContent"] != label {
		t.Errorf("data = %v", data)
	}
	if _, ok := data["url"]; ok {
		t.Error("url echoed although it was not submitted")
	}
	if data["printer"] != hostPort(env.printerB) {
		t.Errorf("printer = %v, want B", data["printer"])
	}
	if got, _ := env.lastBody.Load().(string); got != label {
		t.Errorf("printer received %q", got)
	}
}

func TestPrint_DownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(label))
	}))
	defer source.Close()

	url := source.URL + "/labels/1042.zpl"
	w, resp := env.post(t, `{"url": "`+url+`", "workCenterId": "9"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	data := resp["data"].(map[string]any)
	if data["url"] != url || data["workCenterId"] != "9" || data["zplContent"] != label {
		t.Errorf("data = %v", data)
	}
	if data["printer"] != hostPort(env.printerA) {
		t.Errorf("printer = %v, want default A", data["printer"])
	}
}

func TestPrint_ClientErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing url and zpl", `{"workCenterId": "1"}`},
		{"invalid content", `{"zpl": "hello"}`},
		{"credential missing", `{"url": "http://127.0.0.1:1/carbon/label"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.post(t, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
			}
			if resp["error"] == nil {
				t.Error("missing error field")
			}
		})
	}
	if n := env.printerCalls.Load(); n != 0 {
		t.Errorf("printers called %d times, want 0", n)
	}
}

func TestPrint_ValidationIssueUsesJSONFieldName(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.post(t, `{"url": "not a url", "workCenterId": "1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	issues, _ := resp["error"].([]any)
	if len(issues) != 1 {
		t.Fatalf("error = %v, want one issue", resp["error"])
	}
	path, _ := issues[0].(map[string]any)["path"].([]any)
	if len(path) != 1 || path[0] != "url" {
		t.Errorf("path = %v, want [url]", path)
	}
}

func TestPrint_ServerErrors(t *testing.T) {
	env := newTestEnv(t)
	html := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("\n<!DOCTYPE html><html>login</html>"))
	}))
	defer html.Close()

	w, resp := env.post(t, `{"url": "`+html.URL+`/label"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if msg, _ := resp["error"].(string); !strings.Contains(msg, "HTML response") {
		t.Errorf("error = %v", resp["error"])
	}
}

type panicDispatcher struct{}

func (panicDispatcher) Dispatch(context.Context, core.PrintRequest) (*core.Result, error) {
	panic("unexpected")
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	reg, err := core.NewRegistry([]core.PrinterRecord{{Address: "a"}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	router := NewRouter(RouterDeps{
		Dispatcher: panicDispatcher{},
		Registry:   reg,
		DevicePath: "/pstprnt",
		Logger:     logging.Discard(),
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/print", bytes.NewBufferString(`{"zpl": "^XA"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		if !strings.Contains(w.Body.String(), "internal server error") {
			t.Errorf("body = %s", w.Body.String())
		}
	}
}

func TestRouter_KeepsCallerRequestID(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get(middleware.RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q", got)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	env := newTestEnv(t)
	srv := NewServer(config.ServerConfig{ReadTimeout: time.Second, WriteTimeout: time.Second}, env.router, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	if _, err := http.Get("http://" + listener.Addr().String() + "/health"); err == nil {
		t.Error("server still accepting after shutdown")
	}
}

func TestServer_SlowPrinterStillGetsResponse(t *testing.T) {
	cfg := config.Default()
	cfg.Printers.Devices = []config.PrinterConfig{{Host: "placeholder"}}
	cfg.Printers.DispatchTimeout = 2 * time.Second
	cfg.Server.WriteTimeout = 200 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted a write timeout shorter than the dispatch budget")
	}

	var printed atomic.Int32
	slowPrinter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		time.Sleep(400 * time.Millisecond)
		printed.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer slowPrinter.Close()

	cfg.Printers.Devices = []config.PrinterConfig{{Host: hostPort(slowPrinter)}}
	cfg.Source.FetchTimeout = 500 * time.Millisecond
	cfg.Printers.DispatchTimeout = time.Second
	cfg.Server.WriteTimeout = 2 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	reg, err := core.NewRegistry([]core.PrinterRecord{{Address: cfg.Printers.Devices[0].Host}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	logger := logging.Discard()
	client := &http.Client{}
	dispatcher := core.NewDispatcher(reg,
		core.NewAcquirer(client, core.AcquirerConfig{Timeout: cfg.Source.FetchTimeout}, logger),
		client, core.DispatcherConfig{Timeout: cfg.Printers.DispatchTimeout}, logger)
	router := NewRouter(RouterDeps{Dispatcher: dispatcher, Registry: reg, DevicePath: "/pstprnt", Logger: logger})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := NewServer(cfg.Server, router, logger)
	go func() { _ = srv.Serve(ctx, listener) }()

	resp, err := http.Post("http://"+listener.Addr().String()+"/print", "application/json",
		strings.NewReader(`{"zpl": "`+label+`"}`))
	if err != nil {
		t.Fatalf("POST /print: %v (printed %d)", err, printed.Load())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] == nil || body["data"] == nil {
		t.Errorf("body = %v, want message and data", body)
	}
	if n := printed.Load(); n != 1 {
		t.Errorf("printed %d times, want 1", n)
	}
}
