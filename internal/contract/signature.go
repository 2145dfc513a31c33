package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// PromptVersion identifies the prompt contract between builder and model.
// Bump it when the expected response schema changes; it participates in the
// input signature so stale caches never survive a schema change.
const PromptVersion = "v2.3"

// sha256Hex returns the hex SHA-256 of s.
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// signatureInputs is the canonical object hashed into the input signature.
// Large text blobs (HTML, page summary) enter as their own hashes, bounding
// signature cost and keeping raw template content out of logs. All slices are
// normalized so semantically identical inputs hash identically regardless of
// caller ordering quirks.
type signatureInputs struct {
	PromptVersion   string            `json:"prompt_version"`
	FinalHTMLSHA    string            `json:"final_html_sha256"`
	PageSummarySHA  string            `json:"page_summary_sha256"`
	Schema          TokenSets         `json:"schema"`
	AutoMapping     map[string]string `json:"auto_mapping_proposal"`
	MappingOverride map[string]string `json:"mapping_override"`
	Instructions    string            `json:"user_instructions"`
	Catalog         []string          `json:"catalog"`
	DialectHint     string            `json:"dialect_hint"`
	KeyTokens       []string          `json:"key_tokens"`
}

// ComputeSignature derives the deterministic input signature over all
// contract-build inputs. Go's encoding/json writes map keys sorted, so the
// maps need no extra canonicalization; the catalog is sorted into a copy.
func ComputeSignature(in BuildInputs) string {
	catalog := append([]string(nil), in.Catalog...)
	sort.Strings(catalog)

	si := signatureInputs{
		PromptVersion:   PromptVersion,
		FinalHTMLSHA:    sha256Hex(in.FinalTemplateHTML),
		PageSummarySHA:  sha256Hex(in.PageSummary),
		Schema:          in.schemaOrDefault(),
		AutoMapping:     in.AutoMappingProposal,
		MappingOverride: in.MappingOverride,
		Instructions:    in.UserInstructions,
		Catalog:         catalog,
		DialectHint:     in.DialectHint,
		KeyTokens:       NormalizeKeyTokens(in.KeyTokens),
	}
	data, err := json.Marshal(si)
	if err != nil {
		// Every field is a plain string/slice/map; marshal cannot fail.
		panic(err)
	}
	return sha256Hex(string(data))
}

// NormalizeKeyTokens trims, deduplicates, and preserves first-seen order of
// the user-designated required-filter tokens.
func NormalizeKeyTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := []string{}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
