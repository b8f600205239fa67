// Package platform enumerates the operating system and architecture pairs the
// release pipeline can build for.
package platform

import (
	"fmt"
	"sort"
	"strings"
)

// Platform identifies a build target as an (os, arch) pair.
type Platform struct {
	OS   string
	Arch string
}

var (
	DarwinARM64 = Platform{OS: "darwin", Arch: "arm64"}
	DarwinAMD64 = Platform{OS: "darwin", Arch: "amd64"}
	LinuxAMD64  = Platform{OS: "linux", Arch: "amd64"}
	LinuxARM64  = Platform{OS: "linux", Arch: "arm64"}
)

// targets maps each supported platform to its Rust target triple.
var targets = map[Platform]string{
	DarwinARM64: "aarch64-apple-darwin",
	DarwinAMD64: "x86_64-apple-darwin",
	LinuxAMD64:  "x86_64-unknown-linux-gnu",
	LinuxARM64:  "aarch64-unknown-linux-gnu",
}

// String renders the platform as "<os>-<arch>".
func (p Platform) String() string { return p.OS + "-" + p.Arch }

// Target returns the compiler target triple for p.
func (p Platform) Target() string { return targets[p] }

// Supported reports whether p belongs to the fixed platform set.
func (p Platform) Supported() bool {
	_, ok := targets[p]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (p Platform) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler so platforms can be read
// straight from YAML and flags.
func (p *Platform) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Parse parses "<os>-<arch>" and rejects anything outside the supported set.
func Parse(s string) (Platform, error) {
	osName, arch, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || osName == "" || arch == "" {
		return Platform{}, fmt.Errorf("invalid platform %q: want <os>-<arch>", s)
	}
	p := Platform{OS: osName, Arch: arch}
	if !p.Supported() {
		return Platform{}, fmt.Errorf("unsupported platform %q (supported: %s)", s, strings.Join(Names(All()), ", "))
	}
	return p, nil
}

// All returns every supported platform in canonical order.
func All() []Platform {
	all := make([]Platform, 0, len(targets))
	for p := range targets {
		all = append(all, p)
	}
	Sort(all)
	return all
}

// Sort orders platforms by their string form.
func Sort(ps []Platform) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].String() < ps[j].String() })
}

// Names returns the string form of each platform, preserving order.
func Names(ps []Platform) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.String()
	}
	return names
}
