package ipc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scriptreel/internal/api"
	"scriptreel/internal/ipc"
	"scriptreel/internal/progress"
)

func newClient(t *testing.T, handler http.Handler, opts ...ipc.Option) *ipc.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := ipc.New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNewRequiresBind(t *testing.T) {
	if _, err := ipc.New("  "); !ipc.IsUnavailable(err) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	client, err := ipc.New("127.0.0.1:7487")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.BaseURL() != "http://127.0.0.1:7487" {
		t.Fatalf("unexpected base url %q", client.BaseURL())
	}
}

func TestSubmitSendsTokenAndBody(t *testing.T) {
	var (
		gotAuth string
		gotReq  api.StartRequest
	)
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.StartResponse{ID: "gen-1", Status: "pending"})
	}), ipc.WithToken("secret"))

	resp, err := client.Submit(context.Background(), api.StartRequest{Script: "ALICE: hi", QualityTier: "draft"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.ID != "gen-1" || gotAuth != "Bearer secret" || gotReq.Script != "ALICE: hi" {
		t.Fatalf("unexpected exchange: resp=%+v auth=%q req=%+v", resp, gotAuth, gotReq)
	}
}

func TestErrorResponseIsDecoded(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "generation is not pending", Kind: "conflict", Hint: "tier changes only apply before generation starts"})
	}))

	_, err := client.SetQualityTier(context.Background(), "gen-1", "premium")
	var apiErr *ipc.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *ipc.Error, got %v", err)
	}
	if apiErr.Kind != "conflict" || !ipc.IsStatus(err, http.StatusConflict) {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestListAndLogsBuildQueries(t *testing.T) {
	queries := map[string]string{}
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries[r.URL.Path] = r.URL.RawQuery
		switch r.URL.Path {
		case "/api/generations":
			_ = json.NewEncoder(w).Encode(api.GenerationListResponse{Generations: []api.Generation{{ID: "a"}, {ID: "b"}}})
		case "/api/logs":
			_ = json.NewEncoder(w).Encode(api.LogStreamResponse{Events: []api.LogEvent{{Sequence: 4, Message: "hello"}}, Next: 5})
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	gens, err := client.List(ctx, "pending", "failed")
	if err != nil || len(gens) != 2 {
		t.Fatalf("List = %v %v", gens, err)
	}
	if queries["/api/generations"] != "status=pending&status=failed" {
		t.Fatalf("unexpected list query %q", queries["/api/generations"])
	}

	page, err := client.Logs(ctx, ipc.LogQuery{Since: 3, Limit: 10, Generation: "gen-1"})
	if err != nil || page.Next != 5 || len(page.Events) != 1 {
		t.Fatalf("Logs = %+v %v", page, err)
	}
	if queries["/api/logs"] != "generation=gen-1&limit=10&since=3" {
		t.Fatalf("unexpected logs query %q", queries["/api/logs"])
	}
}

func TestWatchStopsAtFinalEvent(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []progress.Event{
			{GenerationID: "gen-1", Stage: "audio", Percent: 50, Message: "1/2 audio assets settled"},
			{GenerationID: "gen-1", Status: "completed", Stage: "completed", Percent: 100, Final: true},
			{GenerationID: "gen-1", Stage: "never", Percent: 1},
		}
		fmt.Fprint(w, ": keepalive\n\n")
		for _, ev := range events {
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "event:progress\ndata:%s\n\n", data)
		}
	}))

	var seen []progress.Event
	err := client.Watch(context.Background(), "gen-1", func(ev progress.Event) error {
		seen = append(seen, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(seen) != 2 || !seen[1].Final || seen[0].Percent != 50 {
		t.Fatalf("unexpected events %+v", seen)
	}
}

func TestUnreachableDaemonIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, err := ipc.New(addr, ipc.WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Status(context.Background()); !ipc.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
