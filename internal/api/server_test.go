package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/config"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/llm"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/testutil"
)

func newTestServer(t *testing.T, client llm.Client) (*Server, *config.ProjectConfig) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.ProjectConfig{
		TemplatesDir: filepath.Join(root, "templates"),
		Target:       &dbx.Target{Dialect: dbx.DialectSQLite, DSN: filepath.Join(root, "source.db")},
	}
	cfg.ApplyDefaults()

	db, err := dbx.Open(context.Background(), *cfg.Target)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE orders (plant_id INTEGER, batch_no TEXT, start_ts TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders VALUES (101, 'A', '2025-02-01')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	srv := NewServer(Config{
		Project: cfg,
		Builder: contract.NewBuilder(contract.BuilderConfig{Client: client, Model: "test-model", Logger: testutil.NewTestLogger(t)}),
		Client:  client,
		Logger:  testutil.NewTestLogger(t),
	})
	return srv, cfg
}

func writeTemplate(t *testing.T, cfg *config.ProjectConfig, id string) string {
	t.Helper()
	dir := filepath.Join(cfg.TemplatesDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	html := `<html><body><h1>{{header.plant}}</h1><p>{{row.batch_no}}</p></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "final.html"), []byte(html), 0o644))
	return dir
}

func buildResponse() string {
	payload := map[string]any{
		"overview_md": "# Batch report",
		"contract": map[string]any{
			"tokens": map[string]any{
				"scalars":    []string{"header.plant"},
				"row_tokens": []string{"row.batch_no"},
				"totals":     []string{},
			},
			"mapping": map[string]any{
				"header.plant": "PARAM:plant",
				"row.batch_no": "orders.batch_no",
			},
			"join": map[string]any{
				"parent_table": "orders",
				"parent_key":   []string{"plant_id", "batch_no"},
			},
			"date_columns": map[string]any{"orders": "start_ts"},
		},
		"step5_requirements": map[string]any{"tables": []string{"orders"}},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &llm.Fake{})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChartTemplatesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &llm.Fake{})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chart-templates", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Templates []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Templates, 3)
	ids := make([]string, 0, len(body.Templates))
	for _, tmpl := range body.Templates {
		ids = append(ids, tmpl.ID)
	}
	assert.Equal(t, []string{"top_n_categories", "time_series_trend", "distribution_histogram"}, ids)
}

func TestContractBuildAndGet(t *testing.T) {
	fake := &llm.Fake{Responses: []string{buildResponse()}}
	srv, cfg := newTestServer(t, fake)
	writeTemplate(t, cfg, "daily")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/templates/daily/contract/build",
		strings.NewReader(`{"key_tokens": ["header.plant"]}`))
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var built struct {
		Cached bool           `json:"cached"`
		Meta   map[string]any `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &built))
	assert.False(t, built.Cached)
	assert.NotEmpty(t, built.Meta["build_id"])

	// The persisted contract is now served without another model call.
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/templates/daily/contract", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fake.CallCount())
}

func TestContractGet_NotReady(t *testing.T) {
	srv, cfg := newTestServer(t, &llm.Fake{})
	writeTemplate(t, cfg, "daily")

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/templates/daily/contract", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiscoveryEndpoint(t *testing.T) {
	fake := &llm.Fake{Responses: []string{buildResponse()}}
	srv, cfg := newTestServer(t, fake)
	writeTemplate(t, cfg, "daily")

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/templates/daily/contract/build", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/templates/daily/discovery",
		strings.NewReader(`{"start_date": "2025-01-01", "end_date": "2025-12-31"}`))
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp discoveryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.BatchesCount)
	require.Len(t, resp.Batches, 1)
	assert.Equal(t, "101|A", resp.Batches[0].ID)
	assert.Len(t, resp.FieldCatalog, 7)
	assert.NotEmpty(t, resp.Schema.Metrics)
}

func TestChartsSuggestEndpoint_FallbackWithoutUsableProposal(t *testing.T) {
	fake := &llm.Fake{Responses: []string{buildResponse(), "not json"}}
	srv, cfg := newTestServer(t, fake)
	writeTemplate(t, cfg, "daily")

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/templates/daily/contract/build", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/templates/daily/charts/suggest",
		strings.NewReader(`{"start_date": "2025-01-01", "end_date": "2025-12-31"}`))
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chartsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Charts)
}

func TestInvalidTemplateID(t *testing.T) {
	srv, _ := newTestServer(t, &llm.Fake{})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/templates/%2e%2e/contract", nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
