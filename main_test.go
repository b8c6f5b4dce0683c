package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"ragdocs/internal/config"
	"ragdocs/internal/testutils"
)

var errNoConfig = errors.New("config must not be loaded")

func testCLI(t *testing.T) (*cli.App, *bytes.Buffer) {
	orig := loadConfig
	loadConfig = func() (*config.Config, error) { return nil, errNoConfig }
	t.Cleanup(func() { loadConfig = orig })

	out := &bytes.Buffer{}
	a := newCLI()
	a.Writer = out
	a.ErrWriter = out
	a.ExitErrHandler = func(*cli.Context, error) {}
	return a, out
}

func TestCLI_Commands(t *testing.T) {
	a, _ := testCLI(t)

	var names []string
	for _, cmd := range a.Commands {
		names = append(names, cmd.Name)
	}
	assert.ElementsMatch(t, []string{
		"serve", "enqueue", "drain", "queue", "clear", "retry-failed",
		"sources", "remove", "search", "extract-urls",
	}, names)
}

func TestCLI_ArgumentValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"enqueue without urls", []string{"enqueue"}, "at least one url is required"},
		{"remove without urls", []string{"remove"}, "pass either urls or --all"},
		{"remove with urls and all", []string{"remove", "--all", "https://a.dev"}, "pass either urls or --all"},
		{"search without query", []string{"search"}, "a query is required"},
		{"search with blank query", []string{"search", "  "}, "a query is required"},
		{"search with negative limit", []string{"search", "--limit", "-1", "weaviate"}, "--limit must not be negative"},
		{"extract without url", []string{"extract-urls"}, "exactly one url is required"},
		{"extract with two urls", []string{"extract-urls", "https://a.dev", "https://b.dev"}, "exactly one url is required"},
		{"extract with invalid exclusion", []string{"extract-urls", "--exclude", "(", "https://a.dev"}, "invalid exclusion pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := testCLI(t)
			err := a.Run(append([]string{"ragdocs"}, tt.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NotErrorIs(t, err, errNoConfig)
		})
	}
}

func TestCLI_ConfigErrorIsReported(t *testing.T) {
	a, _ := testCLI(t)
	err := a.Run([]string{"ragdocs", "queue"})
	assert.ErrorIs(t, err, errNoConfig)
}

func TestCLI_ExtractFilter(t *testing.T) {
	a, _ := testCLI(t)
	var cmd *cli.Command
	for _, c := range a.Commands {
		if c.Name == "extract-urls" {
			cmd = c
		}
	}
	require.NotNil(t, cmd)

	links := []string{
		"https://docs.ex.com/guide/setup",
		"https://docs.ex.com/api/ref",
		"https://other.com/guide/x",
		"https://docs.ex.com/guide/changelog",
		"https://docs.ex.com/guide/manual.pdf",
	}
	var got []string
	cmd.Action = func(c *cli.Context) error {
		filter, err := linkFilter(c)
		if err != nil {
			return err
		}
		got, err = filter.Apply(c.Args().First(), links)
		return err
	}

	err := a.Run([]string{
		"ragdocs", "extract-urls", "--same-host", "--path-prefix",
		"--exclude", "changelog", "--exclude", `\.pdf$`,
		"https://docs.ex.com/guide/intro",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://docs.ex.com/guide/setup"}, got)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"removed": 2}))
	assert.JSONEq(t, `{"removed":2}`, buf.String())
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

// fakeOllama embeds text about vacuuming on one axis and everything else on another.
func fakeOllama(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)

		raw, _ := json.Marshal(body)
		vec := []float32{0, 1, 0}
		if strings.Contains(strings.ToLower(string(raw)), "vacuum") {
			vec = []float32{1, 0, 0}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      body["model"],
			"embedding":  vec,
			"embeddings": [][]float32{vec},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestSmoke_ServeIngestSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	// 1. Start Infrastructure
	suite := testutils.NewIntegrationSuite(t, testutils.Weaviate)
	suite.Setup()
	defer suite.Teardown()

	// 2. Configure App to use Infrastructure
	cfg := suite.AppConfig()
	cfg.OllamaHost = fakeOllama(t).URL
	cfg.ServerPort = freePort(t)

	orig := loadConfig
	loadConfig = func() (*config.Config, error) { return cfg, nil }
	defer func() { loadConfig = orig }()

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Postgres Tuning</title></head><body>
			<h2>Vacuum</h2><p>Autovacuum keeps tables small.</p>
		</body></html>`)
	}))
	defer docs.Close()

	// 3. Run App in Background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- newCLI().RunContext(ctx, []string{"ragdocs", "serve"}) }()

	base := fmt.Sprintf("http://localhost:%d", cfg.ServerPort)

	// 4. Wait for Health Check
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 500*time.Millisecond)

	// 5. Ingest a page and search it
	resp, err := http.Post(base+"/add-doc", "application/json",
		strings.NewReader(fmt.Sprintf(`{"url": %q}`, docs.URL+"/tuning")))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Data struct {
				Sources int `json:"sources"`
			} `json:"data"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil && body.Data.Sources == 1
	}, 30*time.Second, 200*time.Millisecond)

	resp, err = http.Post(base+"/search", "application/json", strings.NewReader(`{"query": "vacuum", "limit": 1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var found struct {
		Results []struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&found))
	require.Len(t, found.Results, 1)
	assert.Equal(t, docs.URL+"/tuning", found.Results[0].URL)
	assert.Equal(t, "Postgres Tuning", found.Results[0].Title)

	// 6. Shut down
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
