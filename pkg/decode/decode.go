// Package decode runs the external decoders crx2rnx and sbf2rin as
// opaque child processes with explicit argument vectors, propagating
// non-zero exit codes as terminal errors. Gunzip and Unzip do not run
// an external binary: they decompress in-process through
// github.com/mholt/archiver/v3.
package decode

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/mholt/archiver/v3"
)

// Paths configures the external decoder binaries. Paths must come from
// configuration, never from compiled constants. Only Crx2Rnx and
// Sbf2Rin are used; Gunzip and Unzip are not read by this package.
type Paths struct {
	Gunzip  string
	Unzip   string
	Crx2Rnx string
	Sbf2Rin string
}

// Gunzip decompresses src (a .gz file) into destDir, returning the
// decompressed file's path.
func Gunzip(destDir, src string) (string, error) {
	base := filepath.Base(src)
	dest := filepath.Join(destDir, trimGzExt(base))
	if err := archiver.DecompressFile(src, dest); err != nil {
		return "", fmt.Errorf("decode: gunzip %s: %w", src, err)
	}
	return dest, nil
}

func trimGzExt(name string) string {
	ext := filepath.Ext(name)
	if ext == ".gz" || ext == ".Z" {
		return name[:len(name)-len(ext)]
	}
	return name
}

// Unzip extracts src (a zip archive) into destDir.
func Unzip(destDir, src string) error {
	if err := archiver.Unarchive(src, destDir); err != nil {
		return fmt.Errorf("decode: unzip %s: %w", src, err)
	}
	return nil
}

// Crx2Rnx runs the configured CRX2RNX binary against crxFile, which
// writes its decompressed RINEX obs output alongside it, invoked with
// the "-d -f" options.
func Crx2Rnx(tool, crxFile string) error {
	return run(tool, crxFile, "-d", "-f")
}

// Sbf2Rin runs the configured SBF2RIN binary on a raw Septentrio
// upload, producing canonical RINEX files inside destDir under the
// given country code.
func Sbf2Rin(tool, src, destDir, countryCode string) error {
	return run(tool, "-f", src, "-x", destDir, "-O", countryCode)
}

func run(tool string, args ...string) error {
	path, err := exec.LookPath(tool)
	if err != nil {
		return fmt.Errorf("decode: %s not found: %w", tool, err)
	}
	cmd := exec.Command(path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("decode: %s failed: %w: %s", tool, err, stderr.Bytes())
	}
	return nil
}
