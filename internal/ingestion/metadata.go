package ingestion

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// DocumentMeta is the compliance metadata attached to every chunk of a
// source document.
type DocumentMeta struct {
	// DocumentID identifies the regulation (e.g. "GDPR", "CCPA").
	DocumentID string `yaml:"document_id"`
	// EffectiveDate is when the regulation takes effect.
	EffectiveDate string `yaml:"effective_date"`
	// Jurisdiction is the issuing authority.
	Jurisdiction string `yaml:"jurisdiction"`
	// RevisionHistory summarizes amendments to the document.
	RevisionHistory string `yaml:"revision_history"`
}

// Manifest maps source file paths to their document metadata.
type Manifest map[string]DocumentMeta

// LoadManifest reads a YAML manifest keyed by source file path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ingestion: parse manifest %s: %w", path, err)
	}
	return m, nil
}

// withDefaults fills placeholder values for any missing metadata fields so
// retrieval never surfaces empty citation fields.
func (m DocumentMeta) withDefaults() DocumentMeta {
	if m.DocumentID == "" {
		m.DocumentID = "Unknown"
	}
	if m.EffectiveDate == "" {
		m.EffectiveDate = "Unknown"
	}
	if m.Jurisdiction == "" {
		m.Jurisdiction = "Unknown"
	}
	return m
}

// sectionHeading matches "Section 12", "Section 12.3" and "Article 5(1)"
// style headings at the start of a line.
var sectionHeading = regexp.MustCompile(`(?mi)^#*\s*(?:Section|Article)\s+([0-9]+(?:[.([][0-9a-z).\]]*)?)`)

// InferSection extracts a section number from the chunk's own text. Returns
// "N/A" when the chunk carries no recognizable heading.
func InferSection(chunk string) string {
	if m := sectionHeading.FindStringSubmatch(chunk); m != nil {
		return m[1]
	}
	return "N/A"
}
