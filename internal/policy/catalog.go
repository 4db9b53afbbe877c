package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds the keyword and vendor lists the rule handlers match against
type Catalog struct {
	SensitiveKeywords    []string `yaml:"sensitive_keywords"`
	MedicalClaimKeywords []string `yaml:"medical_claim_keywords"`
	VerifiedVendors      []string `yaml:"verified_vendors"`
}

// DefaultCatalog returns the built-in lists
func DefaultCatalog() Catalog {
	return Catalog{
		SensitiveKeywords:    []string{"patient", "medical", "health", "personal", "private", "confidential"},
		MedicalClaimKeywords: []string{"cure", "treat", "heal", "effective", "proven", "clinical"},
		VerifiedVendors:      []string{"OpenAI", "Anthropic", "Google", "Microsoft", "Amazon", "Meta"},
	}
}

// LoadCatalog reads a YAML catalog file. Lists missing from the file keep their defaults.
func LoadCatalog(path string) (Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return catalog, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog content on top of the defaults
func ParseCatalog(data []byte) (Catalog, error) {
	catalog := DefaultCatalog()

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return catalog, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if len(override.SensitiveKeywords) > 0 {
		catalog.SensitiveKeywords = override.SensitiveKeywords
	}
	if len(override.MedicalClaimKeywords) > 0 {
		catalog.MedicalClaimKeywords = override.MedicalClaimKeywords
	}
	if len(override.VerifiedVendors) > 0 {
		catalog.VerifiedVendors = override.VerifiedVendors
	}
	return catalog, nil
}
