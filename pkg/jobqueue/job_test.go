package jobqueue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validJob() Job {
	return Job{
		Site:     "ABCD00DNK",
		Year:     2019,
		Doy:      152,
		Hour:     "a",
		Interval: 30,
		Kind:     KindFTP,
		RSFile:   "rs.a.json",
	}
}

func TestJobValidate(t *testing.T) {
	assert.NoError(t, validJob().Validate())

	bad := validJob()
	bad.Site = "ABCD"
	assert.Error(t, bad.Validate())

	bad = validJob()
	bad.Kind = "bogus"
	assert.Error(t, bad.Validate())
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	j := validJob()

	path, err := Write(dir, j)
	assert.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	content, err := os.ReadFile(path)
	assert.NoError(t, err)

	got, err := Read(content)
	assert.NoError(t, err)
	assert.Equal(t, j, got)
}

func TestWriteRejectsInvalidJob(t *testing.T) {
	dir := t.TempDir()
	bad := validJob()
	bad.Doy = 0

	_, err := Write(dir, bad)
	assert.Error(t, err)
}

func TestIsCommandFile(t *testing.T) {
	assert.True(t, IsCommandFile("gpsdae.command"))
	assert.True(t, IsCommandFile("admincommand"))
	assert.False(t, IsCommandFile("f0c3a9e1-job"))
}
