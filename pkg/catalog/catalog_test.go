package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "catalog.toml")
	assert.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

const sampleCatalog = `
[[location]]
site4 = "ABCD"
site9 = "ABCD00DNK"
shortname = "abcd"
obsint = 30

[[location]]
site4 = "WXYZ"
site9 = "WXYZ00FRO"
shortname = "wxyz"
obsint = 15
`

func TestResolve(t *testing.T) {
	c, err := New(writeCatalogFile(t, sampleCatalog))
	assert.NoError(t, err)

	site9, interval, err := c.Resolve("ABCD")
	assert.NoError(t, err)
	assert.Equal(t, "ABCD00DNK", site9)
	assert.Equal(t, 30, interval)
}

func TestResolveUnknown(t *testing.T) {
	c, err := New(writeCatalogFile(t, sampleCatalog))
	assert.NoError(t, err)

	_, _, err = c.Resolve("ZZZZ")
	assert.ErrorIs(t, err, ErrUnknownSite)
}

func TestCountryResolver(t *testing.T) {
	c, err := New(writeCatalogFile(t, sampleCatalog))
	assert.NoError(t, err)

	country, err := c.CountryResolver("WXYZ")
	assert.NoError(t, err)
	assert.Equal(t, "FRO", country)
}

func TestReload(t *testing.T) {
	file := writeCatalogFile(t, sampleCatalog)
	c, err := New(file)
	assert.NoError(t, err)

	updated := sampleCatalog + "\n[[location]]\nsite4 = \"NEWW\"\nsite9 = \"NEWW00DNK\"\nobsint = 30\n"
	assert.NoError(t, os.WriteFile(file, []byte(updated), 0644))
	assert.NoError(t, c.Reload())

	site9, _, err := c.Resolve("NEWW")
	assert.NoError(t, err)
	assert.Equal(t, "NEWW00DNK", site9)
}

func TestInvalidEntryRejected(t *testing.T) {
	_, err := New(writeCatalogFile(t, `
[[location]]
site4 = "AB"
site9 = "ABCD00DNK"
obsint = 30
`))
	assert.Error(t, err)
}
