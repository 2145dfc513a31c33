package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/llm"
)

// BuildInputs are the inputs to one contract build. TemplateDir must exist or
// be creatable; Catalog is the column allow-list; Schema declares the
// expected token names (missing lists are filled from extraction defaults by
// the caller or left empty).
type BuildInputs struct {
	TemplateDir         string
	Catalog             []string
	FinalTemplateHTML   string
	PageSummary         string
	Schema              *TokenSets
	AutoMappingProposal map[string]string
	MappingOverride     map[string]string
	UserInstructions    string
	DialectHint         string
	DBSignature         string
	KeyTokens           []string
	// Force skips the cache check and rebuilds unconditionally.
	Force bool
}

func (in BuildInputs) schemaOrDefault() TokenSets {
	if in.Schema == nil {
		return TokenSets{Scalars: []string{}, RowTokens: []string{}, Totals: []string{}}
	}
	s := *in.Schema
	if s.Scalars == nil {
		s.Scalars = []string{}
	}
	if s.RowTokens == nil {
		s.RowTokens = []string{}
	}
	if s.Totals == nil {
		s.Totals = []string{}
	}
	return s
}

// BuildResult is the outcome of BuildOrLoad, cached or fresh.
type BuildResult struct {
	Contract     *Contract         `json:"-"`
	Payload      map[string]any    `json:"contract"`
	OverviewMD   string            `json:"overview_md"`
	Requirements map[string]any    `json:"step5_requirements"`
	Assumptions  []string          `json:"assumptions"`
	Warnings     []string          `json:"warnings"`
	Validation   *ValidationReport `json:"validation"`
	Artifacts    map[string]string `json:"artifacts"`
	Meta         *Meta             `json:"meta"`
	Cached       bool              `json:"cached"`
	KeyTokens    []string          `json:"key_tokens"`
}

// Builder runs the contract build pipeline:
//
//	NO_CACHE -> (signature match?) -> CACHE_HIT | BUILD_LLM -> NORMALIZE ->
//	VALIDATE_SQL -> PERSIST -> READY
//
// Failures raise BuildError and leave any previous on-disk cache untouched;
// there is no partial-overwrite path. The builder assumes the caller holds
// the per-template lock; it does not serialize concurrent builds itself.
type Builder struct {
	client llm.Client
	model  string
	logger *slog.Logger
	now    func() time.Time
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	Client llm.Client
	// Model is recorded in build metadata (the transport already knows it).
	Model  string
	Logger *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{client: cfg.Client, model: cfg.Model, logger: logger, now: now}
}

// BuildOrLoad returns the cached build when the input signature (and the
// db signature, when supplied) matches the persisted one, and otherwise runs
// a fresh build: one LLM call, normalization, SQL validation against the
// catalog, and atomic persistence of the artifact set.
func (b *Builder) BuildOrLoad(ctx context.Context, in BuildInputs) (*BuildResult, error) {
	if err := os.MkdirAll(in.TemplateDir, 0o755); err != nil {
		return nil, wrapBuildError("persist", err, "creating template dir %s", in.TemplateDir)
	}

	if in.MappingOverride == nil {
		override, err := labelOverrides(in.TemplateDir)
		if err != nil {
			return nil, err
		}
		in.MappingOverride = override
	}
	in.KeyTokens = NormalizeKeyTokens(in.KeyTokens)

	signature := ComputeSignature(in)

	if !in.Force {
		if cached := b.loadCached(in.TemplateDir, signature, in.DBSignature); cached != nil {
			b.logger.Info("contract cache hit",
				"template_dir", in.TemplateDir,
				"input_signature", signature[:12])
			return cached, nil
		}
	}

	b.logger.Info("building contract",
		"template_dir", in.TemplateDir,
		"dialect", in.DialectHint,
		"catalog_columns", len(in.Catalog),
		"force", in.Force)

	raw, err := b.callModel(ctx, in)
	if err != nil {
		return nil, err
	}

	overview := strings.TrimSpace(coerceString(raw["overview_md"]))
	if overview == "" {
		return nil, buildErrorf("parse", "model response is missing overview_md")
	}

	contractRaw, _ := raw["contract"].(map[string]any)
	if contractRaw == nil {
		return nil, buildErrorf("parse", "model response is missing the contract object")
	}
	payload, err := NormalizePayload(contractRaw)
	if err != nil {
		return nil, err
	}
	payload = AugmentForCompat(payload)

	typed, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	catalog := NewCatalog(in.Catalog)
	applyOverride(typed, in.MappingOverride)
	report, err := validateContractSQL(typed, catalog)
	if err != nil {
		return nil, err
	}
	// Re-materialize the payload after override application and trimming so
	// the persisted JSON matches the validated typed form.
	payload, err = payloadFromTyped(typed)
	if err != nil {
		return nil, err
	}

	requirements, _ := raw["step5_requirements"].(map[string]any)
	if requirements == nil {
		requirements = map[string]any{}
	}
	assumptions := stringList(raw["assumptions"])
	warnings := stringList(raw["warnings"])

	meta := &Meta{
		PromptVersion:    PromptVersion,
		Model:            b.model,
		BuildID:          uuid.New().String(),
		InputSignature:   signature,
		DBSignature:      in.DBSignature,
		PageSummarySHA:   sha256Hex(in.PageSummary),
		GeneratedAt:      b.now().UTC().Format(time.RFC3339),
		Assumptions:      assumptions,
		Warnings:         warnings,
		Validation:       report,
		OverviewPath:     OverviewFile,
		RequirementsPath: RequirementsFile,
		ContractPayload:  payload,
		KeyTokens:        in.KeyTokens,
	}

	artifacts, err := persistArtifacts(in.TemplateDir, overview, requirements, meta)
	if err != nil {
		return nil, err
	}

	b.logger.Info("contract build ready",
		"template_dir", in.TemplateDir,
		"build_id", meta.BuildID,
		"token_coverage", fmt.Sprintf("%.1f", report.TokenCoverage),
		"unresolved", len(typed.Unresolved()))

	return &BuildResult{
		Contract:     typed,
		Payload:      payload,
		OverviewMD:   overview,
		Requirements: requirements,
		Assumptions:  assumptions,
		Warnings:     warnings,
		Validation:   report,
		Artifacts:    artifacts,
		Meta:         meta,
		Cached:       false,
		KeyTokens:    in.KeyTokens,
	}, nil
}

// loadCached returns the previous build iff the full artifact set exists and
// both signatures match. Anything less is a miss, never a repair case.
func (b *Builder) loadCached(templateDir, signature, dbSignature string) *BuildResult {
	if !artifactsComplete(templateDir) {
		return nil
	}
	meta := readMeta(templateDir)
	if meta == nil || meta.InputSignature != signature {
		return nil
	}
	if dbSignature != "" && meta.DBSignature != dbSignature {
		return nil
	}
	overview, err := os.ReadFile(filepath.Join(templateDir, OverviewFile))
	if err != nil {
		return nil
	}
	var requirements map[string]any
	reqData, err := os.ReadFile(filepath.Join(templateDir, RequirementsFile))
	if err != nil || json.Unmarshal(reqData, &requirements) != nil {
		return nil
	}
	typed, err := Decode(meta.ContractPayload)
	if err != nil {
		return nil
	}
	return &BuildResult{
		Contract:     typed,
		Payload:      meta.ContractPayload,
		OverviewMD:   string(overview),
		Requirements: requirements,
		Assumptions:  meta.Assumptions,
		Warnings:     meta.Warnings,
		Validation:   meta.Validation,
		Artifacts:    artifactPaths(templateDir),
		Meta:         meta,
		Cached:       true,
		KeyTokens:    meta.KeyTokens,
	}
}

// Load returns the persisted build for templateDir, or nil when the artifact
// set is incomplete ("not ready"). It never attempts partial recovery.
func Load(templateDir string) *BuildResult {
	if !artifactsComplete(templateDir) {
		return nil
	}
	meta := readMeta(templateDir)
	if meta == nil {
		return nil
	}
	b := &Builder{logger: slog.New(slog.DiscardHandler)}
	return b.loadCached(templateDir, meta.InputSignature, "")
}

// callModel issues the single LLM call and parses the JSON object response.
func (b *Builder) callModel(ctx context.Context, in BuildInputs) (map[string]any, error) {
	req, err := buildPrompt(in)
	if err != nil {
		return nil, err
	}
	text, err := b.client.Complete(ctx, req)
	if err != nil {
		return nil, wrapBuildError("llm", err, "chat completion failed")
	}
	payload, err := llm.ExtractJSONObject(text)
	if err != nil {
		return nil, buildErrorf("parse", "model returned non-JSON content: %q", llm.Snippet(text, 200))
	}
	return payload, nil
}

func persistArtifacts(templateDir, overview string, requirements map[string]any, meta *Meta) (map[string]string, error) {
	if err := WriteTextAtomic(filepath.Join(templateDir, OverviewFile), overview); err != nil {
		return nil, wrapBuildError("persist", err, "writing %s", OverviewFile)
	}
	if err := WriteJSONAtomic(filepath.Join(templateDir, RequirementsFile), requirements); err != nil {
		return nil, wrapBuildError("persist", err, "writing %s", RequirementsFile)
	}
	if err := WriteJSONAtomic(filepath.Join(templateDir, ContractFile), meta.ContractPayload); err != nil {
		return nil, wrapBuildError("persist", err, "writing %s", ContractFile)
	}
	// Meta last: its presence completes the artifact set, so a crash before
	// this point leaves the build "not ready" rather than half-visible.
	if err := WriteJSONAtomic(filepath.Join(templateDir, MetaFile), meta); err != nil {
		return nil, wrapBuildError("persist", err, "writing %s", MetaFile)
	}
	return artifactPaths(templateDir), nil
}

func artifactPaths(templateDir string) map[string]string {
	return map[string]string{
		"overview":           filepath.Join(templateDir, OverviewFile),
		"step5_requirements": filepath.Join(templateDir, RequirementsFile),
		"contract":           filepath.Join(templateDir, ContractFile),
		"meta":               filepath.Join(templateDir, MetaFile),
	}
}

// labelOverrides converts mapping_pdf_labels.json entries into a mapping
// override, used when the caller passes none.
func labelOverrides(templateDir string) (map[string]string, error) {
	labels, err := LoadMappingLabels(templateDir)
	if err != nil {
		return nil, wrapBuildError("persist", err, "loading mapping labels")
	}
	if len(labels) == 0 {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(labels))
	for _, l := range labels {
		header := strings.TrimSpace(l.Header)
		if header == "" {
			continue
		}
		out[header] = strings.TrimSpace(l.Mapping)
	}
	return out, nil
}

// applyOverride replaces model-proposed mappings with user-designated ones.
// Overrides win unconditionally; they are the user's source of truth.
func applyOverride(c *Contract, override map[string]string) {
	if len(override) == 0 {
		return
	}
	if c.Mapping == nil {
		c.Mapping = map[string]string{}
	}
	for token, expr := range override {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		c.Mapping[token] = expr
		if c.Totals != nil {
			if _, ok := c.Totals[token]; ok {
				c.Totals[token] = expr
			}
		}
	}
}

// payloadFromTyped round-trips the typed contract back to its map form for
// persistence.
func payloadFromTyped(c *Contract) (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, wrapBuildError("persist", err, "serializing contract payload")
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, wrapBuildError("persist", err, "round-tripping contract payload")
	}
	return payload, nil
}

func stringList(v any) []string {
	return normalizeStringList(v)
}
