package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	d, e := Default()
	assert.Equal(t, 4, d.UnpackWorkers)
	assert.Equal(t, 20*time.Second, d.QuiescenceAge.Duration)
	assert.Equal(t, 7200*time.Second, d.StaleAge.Duration)
	assert.Equal(t, 300*time.Second, e.FatalBackoff.Duration)
	assert.Equal(t, 900*time.Second, e.LeftoverAge.Duration)
}

func TestDurationSet(t *testing.T) {
	var d Duration
	assert.NoError(t, d.Set("5m"))
	assert.Equal(t, 5*time.Minute, d.Duration)
	assert.Equal(t, "5m0s", d.String())

	assert.Error(t, d.Set("not-a-duration"))
}

func TestLoadDispatcherOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "dispatcher.toml")
	content := `
unpack_workers = 8

[dirs]
incoming = "/spool/incoming"
savedir  = "/spool/save"
workdir  = "/spool/work"
jobqueue = "/spool/queue"
`
	assert.NoError(t, os.WriteFile(file, []byte(content), 0644))

	d, err := LoadDispatcher(file)
	assert.NoError(t, err)
	assert.Equal(t, 8, d.UnpackWorkers)
	assert.Equal(t, "/spool/incoming", d.Dirs.Incoming)
	assert.Equal(t, 20*time.Second, d.QuiescenceAge.Duration, "unset fields keep their default")
}

func TestLoadDispatcherMissingFile(t *testing.T) {
	_, err := LoadDispatcher(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
