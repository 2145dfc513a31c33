package contract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names within a template directory. A build is "ready" only
// when overview, requirements, and meta all exist; contract.json is a
// convenience materialization for the SQL-generation step.
const (
	OverviewFile     = "overview.md"
	RequirementsFile = "step5_requirements.json"
	MetaFile         = "contract_v2_meta.json"
	ContractFile     = "contract.json"
	LabelsFile       = "mapping_pdf_labels.json"
)

// Meta is the persisted build metadata, written alongside the overview and
// requirements. The contract payload is embedded so a single read recovers
// everything needed to serve a cached build.
type Meta struct {
	PromptVersion    string            `json:"prompt_version"`
	Model            string            `json:"model"`
	BuildID          string            `json:"build_id"`
	InputSignature   string            `json:"input_signature"`
	DBSignature      string            `json:"db_signature,omitempty"`
	PageSummarySHA   string            `json:"page_summary_sha256"`
	GeneratedAt      string            `json:"generated_at"`
	Assumptions      []string          `json:"assumptions"`
	Warnings         []string          `json:"warnings"`
	Validation       *ValidationReport `json:"validation"`
	OverviewPath     string            `json:"overview_path"`
	RequirementsPath string            `json:"step5_requirements_path"`
	ContractPayload  map[string]any    `json:"contract_payload"`
	KeyTokens        []string          `json:"key_tokens"`
}

// WriteTextAtomic writes text to path via a same-directory temp file, fsync,
// and rename, so a concurrent reader never observes a partial file.
func WriteTextAtomic(path, text string) error {
	return writeAtomic(path, []byte(text))
}

// WriteJSONAtomic writes obj as indented JSON with the same atomicity
// guarantee as WriteTextAtomic.
func WriteJSONAtomic(path string, obj any) error {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-ops once the rename has happened.
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// readMeta loads the meta file, or returns nil when absent or unreadable.
// A corrupt meta is treated as "no cache", never as an error state to repair.
func readMeta(templateDir string) *Meta {
	data, err := os.ReadFile(filepath.Join(templateDir, MetaFile))
	if err != nil {
		return nil
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return &m
}

// artifactsComplete reports whether the three required artifact files exist.
// A partial set (e.g. overview without meta) counts as no cache at all.
func artifactsComplete(templateDir string) bool {
	for _, name := range []string{OverviewFile, RequirementsFile, MetaFile} {
		if _, err := os.Stat(filepath.Join(templateDir, name)); err != nil {
			return false
		}
	}
	return true
}

// MappingLabel is one user-editable override entry from
// mapping_pdf_labels.json, the on-disk source of truth consulted when no
// explicit override is passed programmatically.
type MappingLabel struct {
	Header  string `json:"header"`
	Mapping string `json:"mapping"`
}

// LoadMappingLabels reads the label override file from templateDir. A missing
// file is not an error; it simply yields no overrides.
func LoadMappingLabels(templateDir string) ([]MappingLabel, error) {
	data, err := os.ReadFile(filepath.Join(templateDir, LabelsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", LabelsFile, err)
	}
	var labels []MappingLabel
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", LabelsFile, err)
	}
	return labels, nil
}
