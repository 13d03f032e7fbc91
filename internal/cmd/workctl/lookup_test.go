package workctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"work-pipeline/internal/config"
	"work-pipeline/internal/domain"
	"work-pipeline/internal/factory"
	"work-pipeline/internal/infra/store"
	"work-pipeline/internal/infra/store/storetest"
)

func TestLookupRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     LookupRequest
		wantErr string
	}{
		{"id only", LookupRequest{ID: 7}, ""},
		{"code only", LookupRequest{ID: NoID, WorkCode: "api-"}, ""},
		{"zero id", LookupRequest{ID: 0}, "not valid"},
		{"negative id", LookupRequest{ID: -5}, "not valid"},
		{"neither", LookupRequest{ID: NoID}, "neither"},
		{"both", LookupRequest{ID: 3, WorkCode: "api-"}, "both"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParseCallType(t *testing.T) {
	for in, want := range map[string]CallType{"http": CallHTTP, "db": CallDB} {
		got, err := ParseCallType(in)
		if err != nil || got != want {
			t.Fatalf("%s: got %v, %v", in, got, err)
		}
		if got.String() != in {
			t.Fatalf("String() = %s", got)
		}
	}
	if _, err := ParseCallType("grpc"); err == nil {
		t.Fatalf("expected an error for grpc")
	}
}

func testConfig() *config.Config {
	return &config.Config{
		ApiURL:          "http://127.0.0.1:1",
		ApiRetries:      0,
		ApiRetryBackoff: time.Millisecond,
		ApiPrefix:       "api",
		SearchWindow:    time.Hour,
		AmqpQueue:       "pp_work_queue",
	}
}

func runCommand(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(Options{
		LoadConfig: func() (*config.Config, error) { return cfg, nil },
	})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestLookupRejectsBadFlagsBeforeConnecting(t *testing.T) {
	cfg := testConfig()
	cases := [][]string{
		{"lookup"},
		{"lookup", "--id", "0"},
		{"lookup", "--id", "4", "--work-code", "api-"},
		{"lookup", "--id", "4", "--call-type", "grpc"},
	}
	for _, args := range cases {
		if _, err := runCommand(t, cfg, args...); err == nil {
			t.Fatalf("%v: expected an error", args)
		}
	}
}

func TestLookupOverHTTP(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/work/42":
			json.NewEncoder(w).Encode(domain.Work{ID: 42, WorkCode: "api-abc", AddUpTo: 9, CreatedOn: created, UpdatedOn: created})
		case r.URL.Path == "/work/search" && r.URL.Query().Get("work_code") == "api-":
			json.NewEncoder(w).Encode([]domain.Work{{ID: 1, WorkCode: "api-x"}, {ID: 2, WorkCode: "api-y"}})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"content": "work not found"})
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.ApiURL = srv.URL

	out, err := runCommand(t, cfg, "lookup", "--id", "42")
	if err != nil {
		t.Fatalf("lookup by id: %v", err)
	}
	var works []domain.Work
	if err := json.Unmarshal([]byte(out), &works); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(works) != 1 || works[0].WorkCode != "api-abc" {
		t.Fatalf("works: %+v", works)
	}

	out, err = runCommand(t, cfg, "lookup", "--work-code", "api-")
	if err != nil {
		t.Fatalf("lookup by code: %v", err)
	}
	works = nil
	if err := json.Unmarshal([]byte(out), &works); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(works) != 2 {
		t.Fatalf("works: %+v", works)
	}

	_, err = runCommand(t, cfg, "lookup", "--id", "7")
	if !errors.Is(err, domain.ErrWorkNotFound) {
		t.Fatalf("expected ErrWorkNotFound, got %v", err)
	}
}

func TestLookupFromStore(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "lookup.db") + "?_busy_timeout=5000"
	st, err := store.Open(ctx, string(store.DialectSQLite), dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := st.DB().Exec(storetest.Schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	work, err := st.Shared().CreateWork(ctx, factory.NewWork("consumer-lookup1", 12))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = st.Close()

	cfg := testConfig()
	cfg.DbDriver = string(store.DialectSQLite)
	cfg.DbDSN = dsn

	out, err := runCommand(t, cfg, "lookup", "--work-code", "consumer-", "--call-type", "db")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	var works []domain.Work
	if err := json.Unmarshal([]byte(out), &works); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(works) != 1 || works[0].ID != work.ID || works[0].AddUpTo != 12 {
		t.Fatalf("works: %+v", works)
	}

	if _, err := runCommand(t, cfg, "lookup", "--id", "999", "--call-type", "db"); !errors.Is(err, domain.ErrWorkNotFound) {
		t.Fatalf("expected ErrWorkNotFound, got %v", err)
	}
}

func TestPublishRejectsNegativeBound(t *testing.T) {
	if _, err := runCommand(t, testConfig(), "publish", "--add-up-to", "-1"); err == nil {
		t.Fatalf("expected a validation error")
	}
}

func TestNodesRequiresEtcd(t *testing.T) {
	_, err := runCommand(t, testConfig(), "nodes")
	if err == nil || !strings.Contains(err.Error(), "etcd_endpoints") {
		t.Fatalf("expected an etcd configuration error, got %v", err)
	}
}
