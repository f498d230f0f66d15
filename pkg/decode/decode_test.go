package decode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mholt/archiver/v3"
	"github.com/stretchr/testify/assert"
)

func TestGunzip(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	plain := filepath.Join(srcDir, "ABCD00DNK_R_20191520000_01H_30S_MO.rnx")
	assert.NoError(t, os.WriteFile(plain, []byte("RINEX CONTENT"), 0644))

	gz := plain + ".gz"
	assert.NoError(t, archiver.CompressFile(plain, gz))

	out, err := Gunzip(destDir, gz)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "ABCD00DNK_R_20191520000_01H_30S_MO.rnx"), out)

	content, err := os.ReadFile(out)
	assert.NoError(t, err)
	assert.Equal(t, "RINEX CONTENT", string(content))
}

func TestTrimGzExt(t *testing.T) {
	assert.Equal(t, "foo.rnx", trimGzExt("foo.rnx.gz"))
	assert.Equal(t, "foo.rnx", trimGzExt("foo.rnx"))
}

func TestRunMissingTool(t *testing.T) {
	err := run("this-tool-does-not-exist-anywhere")
	assert.Error(t, err)
}
