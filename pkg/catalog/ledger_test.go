package catalog

import (
	"path/filepath"
	"testing"

	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/stretchr/testify/assert"
)

func testIdent(t *testing.T) ident.Ident {
	id, err := ident.New("ABCD00DNK", 2019, 152, 'a')
	assert.NoError(t, err)
	return id
}

func TestLedgerNewEmpty(t *testing.T) {
	l, err := NewLedger(filepath.Join(t.TempDir(), "gpssums.toml"))
	assert.NoError(t, err)
	assert.False(t, l.Processed(testIdent(t)))
}

func TestLedgerMarkAndPersist(t *testing.T) {
	file := filepath.Join(t.TempDir(), "gpssums.toml")
	l, err := NewLedger(file)
	assert.NoError(t, err)

	id := testIdent(t)
	assert.NoError(t, l.MarkProcessed(id))
	assert.True(t, l.Processed(id))

	// hour-specific ident still resolves against the day-job row
	other, err := ident.New(id.Site, id.Year, id.Doy, 'b')
	assert.NoError(t, err)
	assert.True(t, l.Processed(other))

	reloaded, err := NewLedger(file)
	assert.NoError(t, err)
	assert.True(t, reloaded.Processed(id))
}

func TestLedgerForget(t *testing.T) {
	file := filepath.Join(t.TempDir(), "gpssums.toml")
	l, err := NewLedger(file)
	assert.NoError(t, err)

	id := testIdent(t)
	assert.NoError(t, l.MarkProcessed(id))
	assert.NoError(t, l.Forget(id))
	assert.False(t, l.Processed(id))
}
