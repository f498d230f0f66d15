package jobqueue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpoolListSkipsTmpAndYoung(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	old := filepath.Join(dir, "job-old")
	assert.NoError(t, os.WriteFile(old, []byte("{}"), 0644))
	assert.NoError(t, os.Chtimes(old, now.Add(-time.Hour), now.Add(-time.Hour)))

	young := filepath.Join(dir, "job-young")
	assert.NoError(t, os.WriteFile(young, []byte("{}"), 0644))

	tmp := filepath.Join(dir, "job-partial.tmp")
	assert.NoError(t, os.WriteFile(tmp, []byte("{"), 0644))
	assert.NoError(t, os.Chtimes(tmp, now.Add(-time.Hour), now.Add(-time.Hour)))

	s := NewSpool(dir)
	entries, err := s.List(2*time.Second, now)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "job-old", entries[0].Name)
}

func TestSpoolListMarksCommandFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	cmdFile := filepath.Join(dir, "admin.command")
	assert.NoError(t, os.WriteFile(cmdFile, []byte("reload ftpuploader"), 0644))
	assert.NoError(t, os.Chtimes(cmdFile, now.Add(-time.Hour), now.Add(-time.Hour)))

	entries, err := NewSpool(dir).List(2*time.Second, now)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.True(t, entries[0].Command)
}

func TestSpoolRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job-gone")
	assert.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	err := NewSpool(dir).Remove(Entry{Path: path})
	assert.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
