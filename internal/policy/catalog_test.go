package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_EmptyPathUsesDefaults(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), catalog)
}

func TestLoadCatalog_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "verified_vendors:\n  - Mistral\n  - Cohere\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mistral", "Cohere"}, catalog.VerifiedVendors)
	assert.Equal(t, DefaultCatalog().SensitiveKeywords, catalog.SensitiveKeywords)

	e := NewEvaluator(catalog)
	assert.True(t, e.vendorVerified("mistral-large"))
	assert.False(t, e.vendorVerified("OpenAI GPT-4"))
}

func TestLoadCatalog_Errors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("verified_vendors: [unclosed"))
	assert.Error(t, err)
}
