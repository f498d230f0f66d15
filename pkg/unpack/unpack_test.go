package unpack

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/de-bkg/gnssd/pkg/filename"
	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/de-bkg/gnssd/pkg/jobstate"
	"github.com/de-bkg/gnssd/pkg/pending"
	"github.com/mholt/archiver/v3"
	"github.com/stretchr/testify/assert"
)

func TestLegacyTypeLetter(t *testing.T) {
	letter, ok := legacyTypeLetter("abcd0010.21o")
	assert.True(t, ok)
	assert.Equal(t, byte('o'), letter)

	letter, ok = legacyTypeLetter("abcd0010.21d")
	assert.True(t, ok)
	assert.Equal(t, byte('d'), letter)

	_, ok = legacyTypeLetter("readme.txt")
	assert.False(t, ok)
}

func TestHandleLongRinex3Gzipped(t *testing.T) {
	root := t.TempDir()
	workDir := filepath.Join(root, "work")
	jobDir := filepath.Join(root, "jobs")
	incoming := filepath.Join(root, "incoming")
	assert.NoError(t, os.MkdirAll(jobDir, 0755))
	assert.NoError(t, os.MkdirAll(incoming, 0755))

	store := jobstate.NewStore(workDir)
	agg := pending.New(workDir, incoming, jobDir, store)
	go agg.Run()
	defer agg.Stop()

	p := &Pool{workDir: workDir, jobDir: jobDir, store: store, agg: agg}

	plainName := "ABCD00DNK_R_20191520000_01H_30S_MO.rnx"
	plain := filepath.Join(incoming, plainName)
	assert.NoError(t, os.WriteFile(plain, []byte("obs content"), 0644))
	gz := plain + ".gz"
	assert.NoError(t, archiver.CompressFile(plain, gz))
	assert.NoError(t, os.Remove(plain))

	desc, err := filename.Parse(gz, nil)
	assert.NoError(t, err)
	id, err := desc.Ident("ABCD00DNK")
	assert.NoError(t, err)

	p.handleLongRinex3(id, Request{AbsPath: gz, Site9: "ABCD00DNK", Desc: desc})
	time.Sleep(50 * time.Millisecond)

	unpackDir := p.unpackDir(id)
	_, statErr := os.Stat(filepath.Join(unpackDir, plainName))
	assert.NoError(t, statErr)
}

func TestScanSetBuildsSubmittableSet(t *testing.T) {
	dir := t.TempDir()
	id, err := ident.New("ABCD00DNK", 2019, 152, 'a')
	assert.NoError(t, err)

	assert.NoError(t, os.WriteFile(filepath.Join(dir, "ABCD00DNK_R_2019152a00_01H_30S_MO.rnx"), []byte("x"), 0644))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "ABCD00DNK_R_2019152a00_01H_GN.rnx"), []byte("x"), 0644))

	set, err := scanSet(id, 30, dir)
	assert.NoError(t, err)
	assert.True(t, set.Submittable())
	assert.Equal(t, "ABCD00DNK_R_2019152a00_01H_GN.rnx", set.NavFiles["GN"])
}

const testObsHeader = `     2.11           OBSERVATION DATA    G                   RINEX VERSION / TYPE
sbf2rin-12.3.1                          20181106 200225 UTC PGM / RUN BY / DATE
ABCD                                                        MARKER NAME
G   02 C1C L1C                                              SYS / # / OBS TYPES
    30.000                                                  INTERVAL
                                                            END OF HEADER
`

func TestSniffIntervalReadsHeaderWhenFilenameHasNone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obs.rnx")
	assert.NoError(t, os.WriteFile(path, []byte(testObsHeader), 0644))

	iv, ok := sniffInterval(path)
	assert.True(t, ok)
	assert.Equal(t, 30, iv)
}

func TestSniffIntervalFailsClosedOnGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obs.rnx")
	assert.NoError(t, os.WriteFile(path, []byte("not a rinex file\n"), 0644))

	_, ok := sniffInterval(path)
	assert.False(t, ok)
}

func TestScanSetRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	id, err := ident.New("ABCD00DNK", 2019, 152, 'a')
	assert.NoError(t, err)

	assert.NoError(t, os.WriteFile(filepath.Join(dir, "ABCD00DNK_R_2019152a00_01H_30S_MO.rnx"), []byte("x"), 0644))

	_, err = scanSet(id, 30, dir)
	assert.Error(t, err)
}
