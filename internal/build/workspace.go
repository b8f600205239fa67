package build

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// skipDirs are never copied into a build workspace.
var skipDirs = map[string]bool{
	".git":   true,
	"target": true,
}

// copyTree copies the regular files and directories under src into dst.
// Symlinks are recreated, not followed. Directories inside dst or any of
// exclude are skipped, so a workspace nested in the source tree never copies
// itself.
func copyTree(src, dst string, exclude ...string) error {
	src, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	skip := make([]string, 0, len(exclude)+1)
	for _, dir := range append([]string{dst}, exclude...) {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		// A directory enclosing the whole source tree excludes nothing.
		if within(src, []string{abs}) {
			continue
		}
		skip = append(skip, abs)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if rel != "." && (skipDirs[d.Name()] || within(path, skip)) {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

// within reports whether path is one of dirs or below one of them.
func within(path string, dirs []string) bool {
	for _, dir := range dirs {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
