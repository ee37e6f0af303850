package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/logging"
	"github.com/bundlesmith/bundlesmith/internal/server"
	"github.com/bundlesmith/bundlesmith/internal/service"
)

func testHandler(t *testing.T, serviceConfig *config.Service) http.Handler {
	t.Helper()

	cfg, err := config.Parse([]byte(`{pipelines: {app: {}}}`))
	if err != nil {
		t.Fatal(err)
	}

	log := logging.NewLoggerWithWriter(logging.Config{}, io.Discard)

	svc := service.New().WithConfig(cfg).WithLogger(log).WithSingleShot(true)
	if err := svc.Run(t.Context()); err != nil {
		t.Fatal(err)
	}

	return server.New().WithConfig(serviceConfig).WithService(svc).WithLogger(log).Handler()
}

func TestEndpoints(t *testing.T) {
	srv := httptest.NewServer(testHandler(t, nil))
	defer srv.Close()

	cases := []struct {
		note   string
		method string
		path   string
		code   int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"list pipelines", http.MethodGet, "/v1/pipelines", http.StatusOK},
		{"get pipeline", http.MethodGet, "/v1/pipelines/app", http.StatusOK},
		{"get unknown pipeline", http.MethodGet, "/v1/pipelines/nope", http.StatusNotFound},
		{"trigger unknown pipeline", http.MethodPost, "/v1/pipelines/nope/trigger", http.StatusNotFound},
		{"trigger with wrong method", http.MethodGet, "/v1/pipelines/app/trigger", http.StatusMethodNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			req, err := http.NewRequestWithContext(t.Context(), tc.method, srv.URL+tc.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != tc.code {
				t.Fatalf("expected status %d, got %d", tc.code, resp.StatusCode)
			}
		})
	}
}

func TestListPipelines(t *testing.T) {
	srv := httptest.NewServer(testHandler(t, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/pipelines")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Result []service.Status `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}

	if len(body.Result) != 1 || body.Result[0].Pipeline != "app" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Result[0].State != service.BuildStateSuccess {
		t.Fatalf("expected successful build, got %+v", body.Result[0])
	}
}

func TestApiPrefix(t *testing.T) {
	srv := httptest.NewServer(testHandler(t, &config.Service{ApiPrefix: "/bundlesmith"}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bundlesmith/v1/pipelines")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected prefixed route to serve, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/pipelines")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected unprefixed route to 404, got %d", resp.StatusCode)
	}
}
