package setup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bornholm/uitester/internal/config"
	"github.com/pkg/errors"
)

func TestNewHTTPServerFromConfig(t *testing.T) {
	dir := t.TempDir()

	conf := config.Default()
	conf.Path.TestSuiteDir = filepath.Join(dir, "test_suite")
	conf.Path.ReportRootDir = filepath.Join(dir, "result")
	conf.Path.LogRootDir = filepath.Join(dir, "logs")
	conf.Storage.Database.DSN = filepath.Join(dir, "data", "uitester.sqlite")

	if err := os.MkdirAll(filepath.Join(conf.Path.TestSuiteDir, "wallet"), 0750); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	for _, name := range []string{"test_login.py", "wallet/test_pay.py"} {
		if err := os.WriteFile(filepath.Join(conf.Path.TestSuiteDir, filepath.FromSlash(name)), []byte("def test_ok(): pass\n"), 0640); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	if err := config.Validate(&conf); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	ctx := context.Background()

	server, err := NewHTTPServerFromConfig(ctx, &conf)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	type testCase struct {
		Path         string
		ExpectedCode int
	}

	testCases := []testCase{
		{Path: "/api/test/suites", ExpectedCode: http.StatusOK},
		{Path: "/api/health", ExpectedCode: http.StatusOK},
		{Path: "/api/test/running", ExpectedCode: http.StatusOK},
		{Path: "/api/test/history", ExpectedCode: http.StatusOK},
		{Path: "/api/test/status/20240520143000_aaaa", ExpectedCode: http.StatusNotFound},
		{Path: "/metrics/", ExpectedCode: http.StatusOK},
		{Path: "/debug/pprof/", ExpectedCode: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.Path, func(t *testing.T) {
			res, err := http.Get(ts.URL + tc.Path)
			if err != nil {
				t.Fatalf("%+v", errors.WithStack(err))
			}
			defer res.Body.Close()

			if res.StatusCode != tc.ExpectedCode {
				t.Errorf("expected %d, got %d", tc.ExpectedCode, res.StatusCode)
			}
		})
	}

	res, err := http.Get(ts.URL + "/api/test/suites")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	defer res.Body.Close()

	var envelope struct {
		Code int `json:"code"`
		Data []struct {
			ID      int    `json:"id"`
			RelPath string `json:"rel_path"`
		} `json:"data"`
	}

	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if len(envelope.Data) != 2 {
		t.Fatalf("expected 2 suites, got %d", len(envelope.Data))
	}

	launcher, err := GetLauncherFromConfig(ctx, &conf)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if err := launcher.Shutdown(ctx); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
}
