package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hanpama/apqgate/internal/apq"
	eventbus "github.com/hanpama/apqgate/internal/eventbus"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHash(t *testing.T) {
	out, err := run(t, "", "hash", "{ hello }")
	require.NoError(t, err)
	require.Equal(t, apq.Hash("{ hello }")+"\n", out)

	out, err = run(t, "{ hello }", "hash")
	require.NoError(t, err)
	require.Equal(t, apq.Hash("{ hello }")+"\n", out)
}

const helloBody = "query Hello { hello }"

func writeManifest(t *testing.T, id string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	src := `{"format":"apollo-persisted-query-manifest","version":1,"operations":[` +
		`{"id":"` + id + `","body":"` + helloBody + `","name":"Hello","type":"query"}]}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestManifestVerify(t *testing.T) {
	out, err := run(t, "", "manifest", "verify", writeManifest(t, apq.Hash(helloBody)))
	require.NoError(t, err)
	require.Equal(t, "ok: 1 operations (Hello)\n", out)

	_, err = run(t, "", "manifest", "verify", writeManifest(t, apq.Hash("other")))
	require.ErrorContains(t, err, "id is not the sha256")

	_, err = run(t, "", "manifest", "verify")
	require.Error(t, err)
}

func confFor(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	cmd, _, err := newRootCmd().Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(args))
	conf, err := newConf(cmd)
	require.NoError(t, err)
	return conf
}

func newGateway(t *testing.T, conf *viper.Viper) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	mux, cleanup, err := buildMux(context.Background(), conf, zap.NewNop(), bus, reg, reg)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

func postJSON(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func persisted(query, hash string) string {
	ext := `"extensions":{"persistedQuery":{"version":1,"sha256Hash":"` + hash + `"}}`
	if query == "" {
		return "{" + ext + "}"
	}
	return `{"query":"` + query + `",` + ext + "}"
}

func TestServeDemoWithPersistedQueries(t *testing.T) {
	srv, _ := newGateway(t, confFor(t))
	url := srv.URL + "/graphql"
	hash := apq.Hash("{ hello }")

	code, body := postJSON(t, url, persisted("", hash))
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"errors":[{"message":"PersistedQueryNotFound"}]}`, body)

	_, body = postJSON(t, url, persisted("{ hello }", hash))
	require.JSONEq(t, `{"data":{"hello":"Hello, world!"}}`, body)

	_, body = postJSON(t, url, persisted("", hash))
	require.JSONEq(t, `{"data":{"hello":"Hello, world!"}}`, body)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(b), `apqgate_apq_requests_total{error="PersistedQueryNotFound",outcome="failed"} 1`)
}

func TestServeManifestPreload(t *testing.T) {
	srv, _ := newGateway(t, confFor(t, "--cache.manifest", writeManifest(t, apq.Hash(helloBody))))
	_, body := postJSON(t, srv.URL+"/graphql", persisted("", apq.Hash(helloBody)))
	require.JSONEq(t, `{"data":{"hello":"Hello, world!"}}`, body)
}

func TestServeBadgerBackend(t *testing.T) {
	dir := t.TempDir()
	srv, _ := newGateway(t, confFor(t, "--cache.backend", "badger", "--cache.dir", dir, "--metrics.path", ""))
	hash := apq.Hash("{ hello }")
	_, body := postJSON(t, srv.URL+"/graphql", persisted("{ hello }", hash))
	require.JSONEq(t, `{"data":{"hello":"Hello, world!"}}`, body)
	_, body = postJSON(t, srv.URL+"/graphql", persisted("", hash))
	require.JSONEq(t, `{"data":{"hello":"Hello, world!"}}`, body)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeUpstream(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"remote":true}}`))
	}))
	defer up.Close()

	srv, _ := newGateway(t, confFor(t, "--upstream.url", up.URL))
	_, body := postJSON(t, srv.URL+"/graphql", `{"query":"{ remote }"}`)
	require.JSONEq(t, `{"data":{"remote":true}}`, body)
}

func TestServeEnvironment(t *testing.T) {
	t.Setenv("APQGATE_APQ_ENABLED", "false")
	srv, _ := newGateway(t, confFor(t))
	code, body := postJSON(t, srv.URL+"/graphql", persisted("", apq.Hash("{ hello }")))
	require.Equal(t, http.StatusBadRequest, code)
	require.JSONEq(t, `{"errors":[{"message":"missing 'query'"}]}`, body)
}

func TestServeConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apqgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apq:\n  max-query-size: 4B\n"), 0o644))

	srv, _ := newGateway(t, confFor(t, "--config", path))
	_, body := postJSON(t, srv.URL+"/graphql", persisted("{ hello }", apq.Hash("{ hello }")))
	require.JSONEq(t, `{"errors":[{"message":"PersistedQueryLargerThanMaxSize"}]}`, body)
}

func TestParseQuerySize(t *testing.T) {
	for in, want := range map[string]int{"": apq.Unbounded, "unbounded": apq.Unbounded, "0": 0, "1KiB": 1024} {
		got, err := parseQuerySize(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"lots", "10EB", "18446744073709551615"} {
		_, err := parseQuerySize(in)
		require.Error(t, err, in)
	}
}

func TestBuildMuxRejectsUnknownBackend(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, _, err := buildMux(context.Background(), confFor(t, "--cache.backend", "redis"), zap.NewNop(), eventbus.New(), reg, reg)
	require.ErrorContains(t, err, "unknown backend")
}
