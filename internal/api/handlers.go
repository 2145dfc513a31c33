package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/charts"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/dbx"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/discovery"
	"github.com/AlfRonDon/NeuraReport-sub002/internal/template"
)

type buildRequest struct {
	UserInstructions string            `json:"user_instructions"`
	KeyTokens        []string          `json:"key_tokens"`
	MappingOverride  map[string]string `json:"mapping_override"`
	Force            bool              `json:"force"`
}

type discoveryRequest struct {
	StartDate string            `json:"start_date"`
	EndDate   string            `json:"end_date"`
	KeyValues map[string]string `json:"key_values"`
}

type discoveryResponse struct {
	Batches         []discovery.Batch         `json:"batches"`
	BatchesCount    int                       `json:"batches_count"`
	RowsTotal       int                       `json:"rows_total"`
	FieldCatalog    []discovery.Field         `json:"field_catalog"`
	Stats           discovery.Stats           `json:"stats"`
	Metrics         []discovery.MetricRow     `json:"metrics"`
	Schema          discovery.Schema          `json:"schema"`
	ResampleSupport discovery.ResampleSupport `json:"resample_support"`
}

type chartsResponse struct {
	Charts []charts.Spec `json:"charts"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChartTemplates lists the fixed chart template catalog so clients can
// render template pickers without hardcoding ids.
func (s *Server) handleChartTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": charts.Templates()})
}

func (s *Server) handleContractBuild(w http.ResponseWriter, r *http.Request) {
	templateDir, ok := s.templateDir(w, r)
	if !ok {
		return
	}
	var req buildRequest
	if !decodeBody(w, r, &req) {
		return
	}

	lock, err := contract.AcquireLock(templateDir)
	if err != nil {
		writeError(w, http.StatusConflict, fmt.Errorf("template is being built: %w", err))
		return
	}
	defer func() { _ = lock.Release() }()

	db, err := dbx.OpenReadOnly(r.Context(), *s.cfg.Target)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer func() { _ = db.Close() }()

	catalog, err := dbx.Catalog(r.Context(), db, s.cfg.Target.Dialect)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	dbSig, err := dbx.Signature(r.Context(), db, s.cfg.Target.Dialect)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	assets, err := template.LoadAssets(templateDir, 0)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	result, err := s.builder.BuildOrLoad(r.Context(), contract.BuildInputs{
		TemplateDir:       templateDir,
		Catalog:           catalog,
		FinalTemplateHTML: assets.HTML,
		PageSummary:       assets.Summary,
		Schema:            assets.Schema,
		MappingOverride:   req.MappingOverride,
		UserInstructions:  req.UserInstructions,
		DialectHint:       s.cfg.Target.Dialect,
		DBSignature:       dbSig,
		KeyTokens:         req.KeyTokens,
		Force:             req.Force,
	})
	if err != nil {
		var buildErr *contract.BuildError
		if errors.As(err, &buildErr) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleContractGet(w http.ResponseWriter, r *http.Request) {
	templateDir, ok := s.templateDir(w, r)
	if !ok {
		return
	}
	result := contract.Load(templateDir)
	if result == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("contract not ready"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	resp, status, err := s.runDiscovery(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChartsSuggest(w http.ResponseWriter, r *http.Request) {
	resp, status, err := s.runDiscovery(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	suggester := charts.NewSuggester(s.client, s.logger)
	specs := suggester.Suggest(r.Context(), resp.FieldCatalog, resp.Stats, resp.Metrics)
	writeJSON(w, http.StatusOK, chartsResponse{Charts: specs})
}

// runDiscovery is the shared body of the discovery and chart endpoints:
// load the persisted contract, enumerate batches, and shape the metrics.
func (s *Server) runDiscovery(r *http.Request) (*discoveryResponse, int, error) {
	templateDir, err := s.resolveTemplateDir(r)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	var req discoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("decoding request body: %w", err)
	}

	built := contract.Load(templateDir)
	if built == nil {
		return nil, http.StatusNotFound, fmt.Errorf("contract not ready")
	}

	db, err := dbx.OpenReadOnly(r.Context(), *s.cfg.Target)
	if err != nil {
		return nil, http.StatusBadGateway, err
	}
	defer func() { _ = db.Close() }()

	result, err := s.discover(r, db, built.Contract, req)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, err
	}

	fields, stats := discovery.BuildFieldCatalogAndStats(result.Batches)
	metrics := discovery.BuildBatchMetrics(result.Batches, nil, s.cfg.Discovery.MetricsLimit)
	schema := discovery.BuildSchema(fields)
	support := discovery.BuildResampleSupport(fields, metrics, &schema, "", s.cfg.Discovery.BucketCount)

	return &discoveryResponse{
		Batches:         result.Batches,
		BatchesCount:    result.BatchesCount,
		RowsTotal:       result.RowsTotal,
		FieldCatalog:    fields,
		Stats:           stats,
		Metrics:         metrics,
		Schema:          schema,
		ResampleSupport: support,
	}, http.StatusOK, nil
}

func (s *Server) discover(r *http.Request, db *sql.DB, c *contract.Contract, req discoveryRequest) (*discovery.Result, error) {
	eng := discovery.New(db, s.cfg.Target.Dialect, s.logger)
	return eng.DiscoverBatches(r.Context(), c, discovery.Params{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		KeyValues: req.KeyValues,
	})
}

// templateDir resolves and validates the {id} route param, writing the error
// response itself on failure.
func (s *Server) templateDir(w http.ResponseWriter, r *http.Request) (string, bool) {
	dir, err := s.resolveTemplateDir(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return dir, true
}

func (s *Server) resolveTemplateDir(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid template id %q", id)
	}
	return filepath.Join(s.cfg.TemplatesDir, id), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
