package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"work-pipeline/internal/domain"
	"work-pipeline/internal/factory"
	"work-pipeline/internal/infra/store"
	"work-pipeline/internal/infra/store/storetest"
	"work-pipeline/internal/usecase"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *WorkHandler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := storetest.New(t)
	svc := usecase.NewWorkService(st.Pooled(), "api", time.Hour, logger)
	h := NewWorkHandler(svc, logger)
	h.pollInterval = 20 * time.Millisecond

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(CORS(mux))
	t.Cleanup(srv.Close)
	return srv, st, h
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestCreateAndGetWork(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/work", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post status: %d", resp.StatusCode)
	}
	var created domain.Work
	decode(t, resp, &created)
	if created.ID <= 0 || !strings.HasPrefix(created.WorkCode, "api-") {
		t.Fatalf("created: %+v", created)
	}
	if created.AddUpTo < 1 || created.AddUpTo >= 100 {
		t.Fatalf("add_up_to out of range: %d", created.AddUpTo)
	}

	resp, err = http.Get(srv.URL + "/work/" + strconv.FormatInt(created.ID, 10))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %d", resp.StatusCode)
	}
	var got domain.Work
	decode(t, resp, &got)
	if got.WorkCode != created.WorkCode || !got.CreatedOn.Equal(created.CreatedOn) {
		t.Fatalf("got %+v want %+v", got, created)
	}
}

func TestGetWorkErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := []struct {
		path   string
		status int
	}{
		{"/work/999", http.StatusNotFound},
		{"/work/abc", http.StatusBadRequest},
		{"/work/-3", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("get %s: %v", tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: want %d got %d", tc.path, tc.status, resp.StatusCode)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/nothing/here")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var body MessageResponse
	decode(t, resp, &body)
	if body.Content != "route not found" {
		t.Fatalf("body: %+v", body)
	}
}

func TestSearchWork(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	session := st.Shared()

	for _, code := range []string{"api-aaa", "api-aab", "consumer-aaa"} {
		if _, err := session.CreateWork(ctx, factory.NewWork(code, 3)); err != nil {
			t.Fatalf("create %s: %v", code, err)
		}
	}

	resp, err := http.Get(srv.URL + "/work/search?work_code=api-aa")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var works []domain.Work
	decode(t, resp, &works)
	if len(works) != 2 {
		t.Fatalf("expected 2 works, got %+v", works)
	}

	resp, err = http.Get(srv.URL + "/work/search?work_code=zzz")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var none []domain.Work
	decode(t, resp, &none)
	if none == nil || len(none) != 0 {
		t.Fatalf("expected an empty array, got %v", none)
	}
}

func TestSearchWorkValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, q := range []string{"", "?work_code=", "?work_code=api%25"} {
		resp, err := http.Get(srv.URL + "/work/search" + q)
		if err != nil {
			t.Fatalf("search %q: %v", q, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%q: status %d", q, resp.StatusCode)
		}
		var body ValidationErrorResponse
		decode(t, resp, &body)
		if body.Error != "Validation failed" || len(body.Details) == 0 {
			t.Fatalf("%q: body %+v", q, body)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/work", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: %d %v", resp.StatusCode, resp.Header)
	}
}

func seedEvents(t *testing.T, st *store.Store, code string, variables ...string) {
	t.Helper()
	for _, v := range variables {
		value := ""
		if v == domain.VarComputeResult {
			value = "3"
		}
		if _, err := st.Shared().CreateEvent(context.Background(), factory.NewEvent(code, v, value)); err != nil {
			t.Fatalf("seed %s: %v", v, err)
		}
	}
}

func TestListEvents(t *testing.T) {
	srv, st, _ := newTestServer(t)
	seedEvents(t, st, "consumer-abc", domain.VarComputeStart, domain.VarComputeStop, domain.VarComputeResult)

	resp, err := http.Get(srv.URL + "/events?work_code=consumer-abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var events []EventMessage
	decode(t, resp, &events)
	if len(events) != 3 || events[0].Variable != domain.VarComputeStart || events[2].Value != "3" {
		t.Fatalf("events: %+v", events)
	}
}

func TestEventStreamClosesAfterResult(t *testing.T) {
	srv, st, _ := newTestServer(t)
	code := "consumer-stream"
	seedEvents(t, st, code, domain.VarComputeStart)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/stream?work_code=" + code
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first EventMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.Variable != domain.VarComputeStart {
		t.Fatalf("first: %+v", first)
	}

	seedEvents(t, st, code, domain.VarComputeStop, domain.VarComputeResult)
	for _, want := range []string{domain.VarComputeStop, domain.VarComputeResult} {
		var msg EventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %s: %v", want, err)
		}
		if msg.Variable != want {
			t.Fatalf("want %s got %+v", want, msg)
		}
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure, got %v", err)
	}
}
