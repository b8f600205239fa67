package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const cargo = `[package]
name = "dotty"
version = "0.1.0" # bumped by release
edition = "2021"

[dependencies]
clap = { version = "4.4", features = ["derive"] }

[dev-dependencies.tempfile]
version = "3"
`

func TestStampBytes(t *testing.T) {
	out, err := StampBytes([]byte(cargo), "v2.5.0")
	if err != nil {
		t.Fatalf("StampBytes() error = %v", err)
	}
	want := `[package]
name = "dotty"
version = "2.5.0" # bumped by release
edition = "2021"

[dependencies]
clap = { version = "4.4", features = ["derive"] }

[dev-dependencies.tempfile]
version = "3"
`
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("StampBytes() mismatch (-want +got):\n%s", diff)
	}

	v, err := Version(out)
	if err != nil || v != "2.5.0" {
		t.Errorf("Version() = %q, %v", v, err)
	}
}

func TestStampBytesOnlyPackageSection(t *testing.T) {
	in := "[workspace]\nversion = \"9.9.9\"\n\n[package]\nname = \"dotty\"\nversion = \"1.0.0\""
	out, err := StampBytes([]byte(in), "1.1.0")
	if err != nil {
		t.Fatal(err)
	}
	want := "[workspace]\nversion = \"9.9.9\"\n\n[package]\nname = \"dotty\"\nversion = \"1.1.0\""
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStampBytesNoVersion(t *testing.T) {
	_, err := StampBytes([]byte("[package]\nname = \"dotty\"\n"), "1.0.0")
	if !errors.Is(err, ErrNoPackageVersion) {
		t.Errorf("StampBytes() error = %v, want ErrNoPackageVersion", err)
	}
}

func TestStampFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cargo.toml")
	if err := os.WriteFile(path, []byte(cargo), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Stamp(path, "3.0.0"); err != nil {
		t.Fatalf("Stamp() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if v, _ := Version(data); v != "3.0.0" {
		t.Errorf("stamped version = %q", v)
	}
}

func TestStampBytesArrayTableEndsPackage(t *testing.T) {
	in := "[[bin]]\nname = \"dotty\"\nversion = \"0.0.0\"\n[package]\nversion = \"1.0.0\"\n"
	out, err := StampBytes([]byte(in), "1.0.1")
	if err != nil {
		t.Fatal(err)
	}
	want := "[[bin]]\nname = \"dotty\"\nversion = \"0.0.0\"\n[package]\nversion = \"1.0.1\"\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

const lock = `# This file is automatically @generated by Cargo.
# It is not intended for manual editing.
version = 4

[[package]]
name = "clap"
version = "4.5.4"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "90bc066a67923782aa8515dbaea16946c5bcc5addbd668bb80af688e53e548a0"

[[package]]
name = "dotty"
version = "0.1.0"
dependencies = [
 "clap",
]
`

func TestStampLockBytes(t *testing.T) {
	out, err := StampLockBytes([]byte(lock), "dotty", "2.5.0")
	if err != nil {
		t.Fatalf("StampLockBytes() error = %v", err)
	}
	want := strings.Replace(lock, "name = \"dotty\"\nversion = \"0.1.0\"", "name = \"dotty\"\nversion = \"2.5.0\"", 1)
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("StampLockBytes() mismatch (-want +got):\n%s", diff)
	}

	v, err := LockedVersion(out, "dotty")
	if err != nil || v != "2.5.0" {
		t.Errorf("LockedVersion() = %q, %v", v, err)
	}
	if v, _ := LockedVersion(out, "clap"); v != "" {
		t.Errorf("registry package must not count as local, got %q", v)
	}
}

func TestStampLockBytesSkipsRegistryNamesake(t *testing.T) {
	in := "[[package]]\nname = \"dotty\"\nversion = \"0.9.0\"\nsource = \"registry+https://github.com/rust-lang/crates.io-index\"\n"
	_, err := StampLockBytes([]byte(in), "dotty", "1.0.0")
	if !errors.Is(err, ErrNotLocked) {
		t.Errorf("StampLockBytes() error = %v, want ErrNotLocked", err)
	}
}

func TestName(t *testing.T) {
	name, err := Name([]byte(cargo))
	if err != nil || name != "dotty" {
		t.Errorf("Name() = %q, %v", name, err)
	}
	if _, err := Name([]byte("[workspace]\nmembers = []\n")); !errors.Is(err, ErrNoPackageName) {
		t.Errorf("Name() error = %v, want ErrNoPackageName", err)
	}
}
