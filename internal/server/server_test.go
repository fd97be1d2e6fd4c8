package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"social-checker/internal/control"
	"social-checker/internal/manager"
	"social-checker/internal/platform"
	"social-checker/internal/probe"
	"social-checker/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSession struct {
	delay time.Duration
}

func (s stubSession) Check(_ context.Context, username string) (types.ProbeOutcome, error) {
	time.Sleep(s.delay)
	if strings.HasPrefix(username, "a") {
		return types.ProbeOutcome{Status: types.Live}, nil
	}
	return types.ProbeOutcome{Status: types.Suspended}, nil
}

func (stubSession) Close() error { return nil }

func newTestServer(t *testing.T, opts Options, delay time.Duration) (*Server, *manager.Manager) {
	t.Helper()
	registry := platform.Default()
	resolver := manager.ResolverFunc(func(name string) (string, probe.Factory, error) {
		p, err := registry.Lookup(name)
		if err != nil {
			return "", nil, err
		}
		return p.Name, probe.FactoryFunc(func(context.Context, int) (probe.Session, error) {
			return stubSession{delay: delay}, nil
		}), nil
	})
	logger := zaptest.NewLogger(t)
	m := manager.New(resolver, manager.Options{Workers: 2, PollInterval: 10 * time.Millisecond}, logger)
	return New(m, registry, opts, logger), m
}

func do(t *testing.T, s *Server, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func waitCurrent(t *testing.T, m *manager.Manager) *manager.Run {
	t.Helper()
	run := m.Current()
	if run == nil {
		t.Fatal("no current run")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		t.Fatalf("run error = %v", err)
	}
	return run
}

func TestHealthAndPlatforms(t *testing.T) {
	s, _ := newTestServer(t, Options{}, 0)

	if rec := do(t, s, http.MethodGet, "/health", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/api/platforms", nil, nil)
	var list []platform.Platform
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 3 {
		t.Fatalf("/api/platforms = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRunLifecycleJSON(t *testing.T) {
	s, m := newTestServer(t, Options{}, 0)

	if rec := do(t, s, http.MethodGet, "/api/run", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("status before start = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/run/pause", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("pause before start = %d", rec.Code)
	}

	body := []byte(`{"platform":"twitter","accounts":["alice","bob:pw","","amy"]}`)
	rec := do(t, s, http.MethodPost, "/api/run", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d %s", rec.Code, rec.Body.String())
	}
	var started manager.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatal(err)
	}
	if started.Platform != "Twitter" || started.Total != 3 {
		t.Errorf("started = %+v", started)
	}

	waitCurrent(t, m)

	rec = do(t, s, http.MethodGet, "/api/run", nil, nil)
	var status struct {
		State    string `json:"state"`
		Counters struct {
			Total, Live, Suspended int
		} `json:"counters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.State != "completed" || status.Counters.Total != 3 || status.Counters.Live != 2 || status.Counters.Suspended != 1 {
		t.Errorf("status = %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/run/results?bucket=suspended&format=txt", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "bob:pw" {
		t.Errorf("txt export = %d %q", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "suspended_accounts_twitter.txt") {
		t.Errorf("Content-Disposition = %s", cd)
	}

	rec = do(t, s, http.MethodGet, "/api/run/results?bucket=live&format=csv", nil, nil)
	if !strings.HasPrefix(rec.Body.String(), "username,status,original_line\n") || strings.Count(rec.Body.String(), "\n") != 3 {
		t.Errorf("csv export = %q", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/api/run/results", nil, nil)
	var all []types.CheckResult
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil || len(all) != 3 {
		t.Errorf("json results = %s", rec.Body.String())
	}

	if rec := do(t, s, http.MethodGet, "/api/run/results?bucket=banned", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad bucket = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/run/resume", nil, nil); rec.Code != http.StatusConflict {
		t.Errorf("resume finished run = %d", rec.Code)
	}
}

func TestStartRejected(t *testing.T) {
	s, m := newTestServer(t, Options{}, 0)

	if rec := do(t, s, http.MethodPost, "/api/run", []byte(`{"platform":"myspace","accounts":["a"]}`), nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown platform = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/run", []byte(`{"platform":"tiktok","accounts":["", "  "]}`), nil); rec.Code != http.StatusBadRequest {
		t.Errorf("empty accounts = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/run", []byte(`{not json`), nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d", rec.Code)
	}
	if m.Current() != nil {
		t.Error("rejected start created a run")
	}
}

func TestPauseResumeStop(t *testing.T) {
	s, m := newTestServer(t, Options{}, 20*time.Millisecond)

	accounts := make([]string, 40)
	for i := range accounts {
		accounts[i] = "bob"
	}
	body, _ := json.Marshal(map[string]any{"platform": "instagram", "accounts": accounts})
	if rec := do(t, s, http.MethodPost, "/api/run", body, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/run", body, nil); rec.Code != http.StatusConflict {
		t.Errorf("second start = %d", rec.Code)
	}

	if rec := do(t, s, http.MethodPost, "/api/run/pause", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("pause = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodPost, "/api/run/pause", nil, nil); rec.Code != http.StatusConflict {
		t.Errorf("second pause = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/run/resume", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("resume = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/run/stop", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("stop = %d", rec.Code)
	}

	run := waitCurrent(t, m)
	if run.State.State() != control.Cancelled {
		t.Errorf("state = %s", run.State.State())
	}
}

func TestMultipartUpload(t *testing.T) {
	s, m := newTestServer(t, Options{Dedupe: true}, 0)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("platform", "TikTok")
	fw, _ := mw.CreateFormFile("file", "accounts.txt")
	fw.Write([]byte("alice\nbob:secret\nALICE\n\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/run", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body.String())
	}

	run := waitCurrent(t, m)
	if run.Total != 2 || run.Platform != "TikTok" {
		t.Errorf("run total=%d platform=%s", run.Total, run.Platform)
	}
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, Options{APIToken: "s3cret"}, 0)

	if rec := do(t, s, http.MethodGet, "/health", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("/health with auth = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/platforms", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d", rec.Code)
	}
	bad := http.Header{"Authorization": {"Bearer nope"}}
	if rec := do(t, s, http.MethodGet, "/api/platforms", nil, bad); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", rec.Code)
	}
	good := http.Header{"Authorization": {"Bearer s3cret"}}
	if rec := do(t, s, http.MethodGet, "/api/platforms", nil, good); rec.Code != http.StatusOK {
		t.Errorf("good token = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/platforms?token=s3cret", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("query token = %d", rec.Code)
	}
}

func TestEventsWebsocket(t *testing.T) {
	s, m := newTestServer(t, Options{}, 0)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Hub().Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/run/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	readEvent := func() Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		return ev
	}

	if ev := readEvent(); ev.Type != "hello" {
		t.Fatalf("first event = %+v", ev)
	}

	body := []byte(`{"platform":"instagram","accounts":["alice","bob","amy"]}`)
	if rec := do(t, s, http.MethodPost, "/api/run", body, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d", rec.Code)
	}

	var progress int
	for {
		ev := readEvent()
		if ev.Type == "progress" {
			progress++
			if ev.Progress == nil || ev.Progress.Total != 3 {
				t.Errorf("progress event = %+v", ev)
			}
		}
		if ev.Type == "finished" {
			if ev.Status == nil || ev.Status.State != control.Completed {
				t.Errorf("finished event = %+v", ev)
			}
			break
		}
	}
	if progress != 3 {
		t.Errorf("progress events = %d", progress)
	}
	waitCurrent(t, m)
}

func TestConnectDuringBroadcastFlood(t *testing.T) {
	h := NewHub(nil)
	ts := httptest.NewServer(h)
	defer ts.Close()
	defer h.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				// fills send buffers so slow clients are dropped while joining
				h.Progress(types.ProgressEvent{Total: 1}, types.CheckResult{})
			}
		}
	}()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	for i := 0; i < 20; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			close(stop)
			t.Fatal(err)
		}
		conn.Close()
	}
	close(stop)
	<-done
}
