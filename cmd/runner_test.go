package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/hermesdl/hermesctl/internal/api"
	"github.com/hermesdl/hermesctl/internal/auth"
	"github.com/hermesdl/hermesctl/internal/registry"
	"github.com/hermesdl/hermesctl/internal/repositories"
	"github.com/hermesdl/hermesctl/internal/shared"
	tu "github.com/hermesdl/hermesctl/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

func newTestRunner(t *testing.T, baseURL string) (*Runner, *bytes.Buffer) {
	t.Helper()
	logger := log.New(io.Discard)
	output := &bytes.Buffer{}

	creds := auth.NewStore(t.TempDir(), logger)
	if err := creds.Set(&oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"}); err != nil {
		t.Fatalf("failed to seed credentials: %v", err)
	}

	reg, err := registry.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:   shared.DefaultConfig(),
		Client:   api.NewClient(baseURL, creds, api.WithLogger(logger)),
		Creds:    creds,
		Registry: reg,
		History:  repositories.NewHistoryRepository(db),
		Logger:   logger,
		Output:   output,
	})
	return runner, output
}

// runCommand executes one CLI invocation against a runner's command tree.
func runCommand(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "hermesctl", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"hermesctl"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), `"key": "value"`) {
				t.Errorf("expected pretty JSON, got %s", output.String())
			}
		})

		t.Run("compact output without pretty", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got := strings.TrimSpace(output.String()); got != `{"key":"value"}` {
				t.Errorf("expected compact JSON, got %s", got)
			}
		})

		t.Run("write failure surfaces error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err == nil {
				t.Error("expected write error")
			}
		})

		t.Run("unmarshalable data surfaces error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if err := runner.writeJSON(make(chan int), false); err == nil {
				t.Error("expected marshal error")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s\n", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world\n" {
			t.Errorf("unexpected output %q", output.String())
		}

		runner = NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := runner.writePlain("x"); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestTrackCommands(t *testing.T) {
	jobStatus := api.DownloadStatus{DownloadID: "job-1", Status: api.StatusDownloading}

	newServer := func(t *testing.T) *httptest.Server {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			switch req.URL.Path {
			case "/api/v1/download/job-1":
				json.NewEncoder(w).Encode(jobStatus)
			default:
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"detail": "not found"}`))
			}
		}))
		t.Cleanup(server.Close)
		return server
	}

	t.Run("add verifies and follows a job", func(t *testing.T) {
		runner, output := newTestRunner(t, newServer(t).URL)

		if err := runCommand(t, runner, "track", "add", "job-1"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !strings.Contains(output.String(), "Following job-1") {
			t.Errorf("unexpected output %q", output.String())
		}
		if !runner.reg.Contains("job-1") {
			t.Error("expected job-1 in the tracked set")
		}
	})

	t.Run("add rejects an unknown job", func(t *testing.T) {
		runner, _ := newTestRunner(t, newServer(t).URL)

		if err := runCommand(t, runner, "track", "add", "ghost"); err == nil {
			t.Fatal("expected verification failure")
		}
		if runner.reg.Contains("ghost") {
			t.Error("expected ghost not to be tracked")
		}
	})

	t.Run("add with no-verify skips the server", func(t *testing.T) {
		runner, _ := newTestRunner(t, "http://example.invalid")

		if err := runCommand(t, runner, "track", "add", "--no-verify", "offline-job"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !runner.reg.Contains("offline-job") {
			t.Error("expected offline-job to be tracked")
		}
	})

	t.Run("add without id fails", func(t *testing.T) {
		runner, _ := newTestRunner(t, newServer(t).URL)
		if err := runCommand(t, runner, "track", "add"); err == nil {
			t.Fatal("expected missing argument error")
		}
	})

	t.Run("list remove and clear", func(t *testing.T) {
		runner, output := newTestRunner(t, newServer(t).URL)
		runner.reg.Add("job-1")
		runner.reg.Add("job-2")

		if err := runCommand(t, runner, "track", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(output.String(), "job-1") || !strings.Contains(output.String(), "job-2") {
			t.Errorf("expected both jobs listed, got %q", output.String())
		}

		if err := runCommand(t, runner, "track", "remove", "job-1"); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if runner.reg.Contains("job-1") {
			t.Error("expected job-1 removed")
		}

		if err := runCommand(t, runner, "track", "clear"); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if len(runner.reg.List()) != 0 {
			t.Error("expected empty tracked set")
		}
	})

	t.Run("list as JSON", func(t *testing.T) {
		runner, output := newTestRunner(t, newServer(t).URL)
		runner.reg.Add("job-1")

		if err := runCommand(t, runner, "track", "list", "--json"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		var ids []string
		if err := json.Unmarshal(output.Bytes(), &ids); err != nil {
			t.Fatalf("expected JSON array, got %q: %v", output.String(), err)
		}
		if len(ids) != 1 || ids[0] != "job-1" {
			t.Errorf("unexpected ids %v", ids)
		}
	})
}

func TestQueueAndStatusCommands(t *testing.T) {
	pct := func(v float64) *float64 { return &v }

	t.Run("queue prints summary and rows", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(api.DownloadQueue{
				TotalItems: 2,
				Active:     1,
				Pending:    1,
				Items: []api.DownloadStatus{
					{DownloadID: "job-1", Status: api.StatusDownloading, Progress: &api.DownloadProgress{Percentage: pct(55)}},
					{DownloadID: "job-2", Status: api.StatusQueued},
				},
			})
		}))
		defer server.Close()

		runner, output := newTestRunner(t, server.URL)
		if err := runCommand(t, runner, "queue"); err != nil {
			t.Fatalf("queue failed: %v", err)
		}
		if !strings.Contains(output.String(), "2 total") {
			t.Errorf("expected summary, got %q", output.String())
		}
		if !strings.Contains(output.String(), "downloading") || !strings.Contains(output.String(), "55.0%") {
			t.Errorf("expected job rows, got %q", output.String())
		}
	})

	t.Run("queue tracked filter hides other jobs", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(api.DownloadQueue{
				TotalItems: 2,
				Items: []api.DownloadStatus{
					{DownloadID: "mine", Status: api.StatusQueued},
					{DownloadID: "other", Status: api.StatusQueued},
				},
			})
		}))
		defer server.Close()

		runner, output := newTestRunner(t, server.URL)
		runner.reg.Add("mine")

		if err := runCommand(t, runner, "queue", "--tracked"); err != nil {
			t.Fatalf("queue failed: %v", err)
		}
		if !strings.Contains(output.String(), "mine") || strings.Contains(output.String(), "other") {
			t.Errorf("expected only tracked jobs, got %q", output.String())
		}
	})

	t.Run("status prints one job", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(api.DownloadStatus{
				DownloadID:      "job-1",
				Status:          api.StatusProcessing,
				CurrentFilename: "clip.mp4",
			})
		}))
		defer server.Close()

		runner, output := newTestRunner(t, server.URL)
		if err := runCommand(t, runner, "status", "job-1"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "processing") || !strings.Contains(output.String(), "clip.mp4") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("status follow records the outcome", func(t *testing.T) {
		reports := []api.DownloadStatus{
			{DownloadID: "job-1", Status: api.StatusDownloading, Progress: &api.DownloadProgress{Percentage: pct(80)}},
			{DownloadID: "job-1", Status: api.StatusCompleted, Result: &api.DownloadResult{Title: "Clip"}},
		}
		var call int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			i := min(call, len(reports)-1)
			call++
			json.NewEncoder(w).Encode(reports[i])
		}))
		defer server.Close()

		runner, output := newTestRunner(t, server.URL)
		if err := runCommand(t, runner, "status", "--follow", "job-1"); err != nil {
			t.Fatalf("follow failed: %v", err)
		}
		if !strings.Contains(output.String(), "80.0%") {
			t.Errorf("expected progress line, got %q", output.String())
		}

		entry, err := runner.history.Get("job-1")
		if err != nil {
			t.Fatalf("expected recorded history entry: %v", err)
		}
		if entry.Status != api.StatusCompleted || entry.Progress != 80 {
			t.Errorf("expected frozen progress 80, got %+v", entry)
		}
	})

	t.Run("status follow of failed job returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(api.DownloadStatus{
				DownloadID: "job-1",
				Status:     api.StatusFailed,
				Error:      "disk full",
			})
		}))
		defer server.Close()

		runner, _ := newTestRunner(t, server.URL)
		err := runCommand(t, runner, "status", "--follow", "job-1")
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Errorf("expected failure with server error, got %v", err)
		}
	})
}

func TestGetAndCancelCommands(t *testing.T) {
	t.Run("get follows the new job", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodPost || req.URL.Path != "/api/v1/download/" {
				t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
			}
			var body api.DownloadRequest
			json.NewDecoder(req.Body).Decode(&body)
			if body.URL != "https://example.com/v" {
				t.Errorf("unexpected body %+v", body)
			}
			json.NewEncoder(w).Encode(api.DownloadResponse{DownloadID: "new-job", Status: api.StatusQueued})
		}))
		defer server.Close()

		runner, output := newTestRunner(t, server.URL)
		if err := runCommand(t, runner, "get", "https://example.com/v"); err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !strings.Contains(output.String(), "new-job") {
			t.Errorf("unexpected output %q", output.String())
		}
		if !runner.reg.Contains("new-job") {
			t.Error("expected new job to be tracked")
		}
	})

	t.Run("get with no-track leaves the set alone", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(api.DownloadResponse{DownloadID: "new-job", Status: api.StatusQueued})
		}))
		defer server.Close()

		runner, _ := newTestRunner(t, server.URL)
		if err := runCommand(t, runner, "get", "--no-track", "https://example.com/v"); err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if runner.reg.Contains("new-job") {
			t.Error("expected new job not to be tracked")
		}
	})

	t.Run("cancel reports the server message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path != "/api/v1/download/job-1/cancel" {
				t.Errorf("unexpected path %s", req.URL.Path)
			}
			json.NewEncoder(w).Encode(api.CancelResponse{DownloadID: "job-1", Cancelled: true, Message: "cancelled"})
		}))
		defer server.Close()

		runner, output := newTestRunner(t, server.URL)
		if err := runCommand(t, runner, "cancel", "job-1"); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		if !strings.Contains(output.String(), "Cancelled job-1") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}

func TestHistoryCommands(t *testing.T) {
	seed := func(t *testing.T, runner *Runner) {
		t.Helper()
		status := &api.DownloadStatus{
			DownloadID: "job-1",
			Status:     api.StatusCompleted,
			Result:     &api.DownloadResult{Title: "Old Clip"},
		}
		if err := runner.history.Record(status, 100); err != nil {
			t.Fatalf("failed to seed history: %v", err)
		}
	}

	t.Run("list shows recorded rows", func(t *testing.T) {
		runner, output := newTestRunner(t, "http://example.invalid")
		seed(t, runner)

		if err := runCommand(t, runner, "history", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(output.String(), "Old Clip") {
			t.Errorf("expected recorded row, got %q", output.String())
		}
	})

	t.Run("show prints details", func(t *testing.T) {
		runner, output := newTestRunner(t, "http://example.invalid")
		seed(t, runner)

		if err := runCommand(t, runner, "history", "show", "job-1"); err != nil {
			t.Fatalf("show failed: %v", err)
		}
		if !strings.Contains(output.String(), "Old Clip") || !strings.Contains(output.String(), "completed") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("show of unknown id fails", func(t *testing.T) {
		runner, _ := newTestRunner(t, "http://example.invalid")
		if err := runCommand(t, runner, "history", "show", "ghost"); err == nil {
			t.Fatal("expected not found error")
		}
	})

	t.Run("delete and clear", func(t *testing.T) {
		runner, _ := newTestRunner(t, "http://example.invalid")
		seed(t, runner)

		if err := runCommand(t, runner, "history", "delete", "job-1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if err := runCommand(t, runner, "history", "clear"); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		entries, err := runner.history.List("", 0)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty history, got %+v", entries)
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("login stores the session", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path != "/api/v1/auth/login" {
				t.Errorf("unexpected path %s", req.URL.Path)
			}
			json.NewEncoder(w).Encode(api.TokenPair{AccessToken: "fresh", RefreshToken: "fresh-r"})
		}))
		defer server.Close()

		runner, output := newTestRunner(t, server.URL)
		if err := runCommand(t, runner, "auth", "login", "-u", "alex", "-p", "secret"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if !strings.Contains(output.String(), "Signed in as alex") {
			t.Errorf("unexpected output %q", output.String())
		}
		access, ok := runner.creds.AccessToken()
		if !ok || access != "fresh" {
			t.Errorf("expected stored token, got %q", access)
		}
	})

	t.Run("login without password fails", func(t *testing.T) {
		runner, _ := newTestRunner(t, "http://example.invalid")
		if err := runCommand(t, runner, "auth", "login", "-u", "alex"); err == nil {
			t.Fatal("expected missing password error")
		}
	})

	t.Run("logout clears the session", func(t *testing.T) {
		runner, _ := newTestRunner(t, "http://example.invalid")
		if err := runCommand(t, runner, "auth", "logout"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}
		if _, ok := runner.creds.AccessToken(); ok {
			t.Error("expected cleared credentials")
		}
	})

	t.Run("status reports session and server health", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
		}))
		defer server.Close()

		runner, output := newTestRunner(t, server.URL)
		if err := runCommand(t, runner, "auth", "status"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "signed in") || !strings.Contains(output.String(), "status: ok") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}
