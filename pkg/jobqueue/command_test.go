package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReloadFTPUploader(t *testing.T) {
	cmd, err := ParseCommand("reload ftpuploader\n")
	assert.NoError(t, err)
	assert.Equal(t, ReloadFTPUploader, cmd.Kind)
}

func TestParseForceComplete(t *testing.T) {
	cmd, err := ParseCommand("force complete ABCD00DNK 2019 152")
	assert.NoError(t, err)
	assert.Equal(t, ForceComplete, cmd.Kind)
	assert.Equal(t, "ABCD00DNK", cmd.Site)
	assert.Equal(t, 2019, cmd.Year)
	assert.Equal(t, 152, cmd.DoyFrom)
	assert.Equal(t, 152, cmd.DoyTo)
}

func TestParseReprocessSingleDay(t *testing.T) {
	cmd, err := ParseCommand("reprocess ABCD00DNK 2019 152")
	assert.NoError(t, err)
	assert.Equal(t, Reprocess, cmd.Kind)
	assert.Equal(t, "ABCD00DNK", cmd.Site)
	assert.Equal(t, 2019, cmd.Year)
	assert.Equal(t, 152, cmd.DoyFrom)
	assert.Equal(t, 152, cmd.DoyTo)
}

func TestParseReprocessRange(t *testing.T) {
	cmd, err := ParseCommand("reprocess ABCD00DNK 2019 152-155")
	assert.NoError(t, err)
	assert.Equal(t, Reprocess, cmd.Kind)
	assert.Equal(t, 152, cmd.DoyFrom)
	assert.Equal(t, 155, cmd.DoyTo)
}

func TestParseReprocessBadRange(t *testing.T) {
	_, err := ParseCommand("reprocess ABCD00DNK 2019 155-152")
	assert.Error(t, err)
}

func TestParseCommandUnrecognized(t *testing.T) {
	_, err := ParseCommand("frobnicate everything")
	assert.Error(t, err)
}

func TestParseCommandMalformedForceComplete(t *testing.T) {
	_, err := ParseCommand("force complete ABCD00DNK 2019")
	assert.Error(t, err)
}
