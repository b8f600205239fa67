// Package manifest stamps the release version into a Cargo.toml so the
// compiled binary reports the version it was released as.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	// ErrNoPackageVersion is returned when the manifest has no [package] version.
	ErrNoPackageVersion = errors.New("no version key in [package] section")
	// ErrNoPackageName is returned when the manifest has no [package] name.
	ErrNoPackageName = errors.New("no name key in [package] section")
	// ErrNotLocked is returned when a lockfile has no entry for the local package.
	ErrNotLocked = errors.New("package missing from lockfile")
)

var (
	sectionRE = regexp.MustCompile(`^\s*\[\[?\s*([^\]]+?)\s*\]\]?\s*(#.*)?$`)
	versionRE = regexp.MustCompile(`^(\s*version\s*=\s*)"[^"]*"(.*)$`)
	nameRE    = regexp.MustCompile(`^\s*name\s*=\s*"([^"]*)"`)
	sourceRE  = regexp.MustCompile(`^\s*source\s*=`)
)

// Stamp rewrites the version key of the [package] table in the manifest at
// path. Every other byte of the file is preserved.
func Stamp(path, version string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	out, err := StampBytes(data, version)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, info.Mode().Perm())
}

// StampBytes is Stamp over an in-memory manifest.
func StampBytes(data []byte, version string) ([]byte, error) {
	version = strings.TrimPrefix(version, "v")

	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inPackage, stamped := false, false
	for sc.Scan() {
		line := sc.Text()
		if m := sectionRE.FindStringSubmatch(line); m != nil {
			inPackage = m[1] == "package"
		} else if inPackage && !stamped {
			if m := versionRE.FindStringSubmatch(line); m != nil {
				line = fmt.Sprintf(`%s"%s"%s`, m[1], version, m[2])
				stamped = true
			}
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !stamped {
		return nil, ErrNoPackageVersion
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		out.Truncate(out.Len() - 1)
	}
	return out.Bytes(), nil
}

// Version reads the [package] version from manifest bytes.
func Version(data []byte) (string, error) {
	inPackage := false
	for _, line := range strings.Split(string(data), "\n") {
		if m := sectionRE.FindStringSubmatch(line); m != nil {
			inPackage = m[1] == "package"
			continue
		}
		if !inPackage {
			continue
		}
		if m := versionRE.FindStringSubmatch(line); m != nil {
			value := strings.TrimPrefix(line, m[1])
			return strings.SplitN(strings.TrimPrefix(value, `"`), `"`, 2)[0], nil
		}
	}
	return "", ErrNoPackageVersion
}

// Name reads the [package] name from manifest bytes.
func Name(data []byte) (string, error) {
	inPackage := false
	for _, line := range strings.Split(string(data), "\n") {
		if m := sectionRE.FindStringSubmatch(line); m != nil {
			inPackage = m[1] == "package"
			continue
		}
		if inPackage {
			if m := nameRE.FindStringSubmatch(line); m != nil {
				return m[1], nil
			}
		}
	}
	return "", ErrNoPackageName
}

// lockEntry locates the [[package]] entry for a local package in a
// Cargo.lock. Registry and git packages carry a source key and never match.
// It returns the index of the entry's version line, or -1.
func lockEntry(lines []string, name string) int {
	found := -1
	inPackage, matches, hasSource, versionAt := false, false, false, -1
	flush := func() {
		if inPackage && matches && !hasSource && versionAt >= 0 && found < 0 {
			found = versionAt
		}
	}
	for i, line := range lines {
		if m := sectionRE.FindStringSubmatch(line); m != nil {
			flush()
			inPackage, matches, hasSource, versionAt = m[1] == "package", false, false, -1
			continue
		}
		if !inPackage {
			continue
		}
		switch {
		case nameRE.MatchString(line):
			matches = nameRE.FindStringSubmatch(line)[1] == name
		case sourceRE.MatchString(line):
			hasSource = true
		case versionAt < 0 && versionRE.MatchString(line):
			versionAt = i
		}
	}
	flush()
	return found
}

// StampLockBytes sets the version of the local package name in Cargo.lock
// bytes, so a --locked build accepts the stamped manifest.
func StampLockBytes(data []byte, name, version string) ([]byte, error) {
	version = strings.TrimPrefix(version, "v")
	lines := strings.Split(string(data), "\n")
	i := lockEntry(lines, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotLocked, name)
	}
	m := versionRE.FindStringSubmatch(lines[i])
	lines[i] = fmt.Sprintf(`%s"%s"%s`, m[1], version, m[2])
	return []byte(strings.Join(lines, "\n")), nil
}

// LockedVersion reads the version recorded for the local package name.
func LockedVersion(data []byte, name string) (string, error) {
	lines := strings.Split(string(data), "\n")
	i := lockEntry(lines, name)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrNotLocked, name)
	}
	value := strings.TrimPrefix(lines[i], versionRE.FindStringSubmatch(lines[i])[1])
	return strings.SplitN(strings.TrimPrefix(value, `"`), `"`, 2)[0], nil
}

// StampLock rewrites the lockfile at path beside a manifest that was
// stamped to version.
func StampLock(path, name, version string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read lockfile: %w", err)
	}
	out, err := StampLockBytes(data, name, version)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, info.Mode().Perm())
}
