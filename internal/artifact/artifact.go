// Package artifact names, packages and stores the per-platform release
// archives.
package artifact

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keithhendry/dotty/internal/platform"
)

// Extension is the archive suffix of every artifact.
const Extension = ".tar.gz"

// Artifact is a packaged build output for one platform.
type Artifact struct {
	Platform platform.Platform
	Name     string
	Path     string
	SHA256   string
	Size     int64
}

// ArchiveName returns "<binary>-<version>-<os>-<arch>.tar.gz". The version is
// written without a leading "v". The result depends on nothing but its inputs.
func ArchiveName(binary, version string, p platform.Platform) string {
	return fmt.Sprintf("%s-%s-%s-%s%s", binary, strings.TrimPrefix(version, "v"), p.OS, p.Arch, Extension)
}

// epoch is the fixed modification time written into archives so identical
// binaries produce identical archives.
var epoch = time.Unix(0, 0).UTC()

// Package writes binaryPath into a gzip-compressed tarball at dest, stored at
// the archive root as name with mode 0755.
func Package(binaryPath, name, dest string) error {
	src, err := os.Open(binaryPath)
	if err != nil {
		return fmt.Errorf("open binary: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat binary: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("binary %s is not a regular file", binaryPath)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".archive-*")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	gz.ModTime = epoch
	tw := tar.NewWriter(gz)

	hdr := &tar.Header{
		Name:     name,
		Mode:     0755,
		Size:     info.Size(),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		tmp.Close()
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		tmp.Close()
		return fmt.Errorf("write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close gzip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return os.Rename(tmp.Name(), dest)
}

// Digest returns the hex SHA-256 and size of the file at path.
func Digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
