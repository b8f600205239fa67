// Package formula keeps the Homebrew tap in step with published releases.
package formula

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode"

	"github.com/keithhendry/dotty/internal/artifact"
	"github.com/keithhendry/dotty/internal/platform"
)

// Download is one platform's archive as the formula references it.
type Download struct {
	Platform platform.Platform
	URL      string
	SHA256   string
}

// Block returns the Homebrew hardware block name for the download.
func (d Download) Block() string {
	if d.Platform.Arch == "arm64" {
		return "on_arm"
	}
	return "on_intel"
}

// Spec is everything a formula is rendered from.
type Spec struct {
	Binary      string
	Version     string
	Description string
	Homepage    string
	License     string
	Downloads   []Download
}

// ClassName derives the Ruby class name Homebrew expects from a formula
// name: "dotty" becomes "Dotty", "dotty-cli" becomes "DottyCli".
func ClassName(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if r == '-' || r == '_' || r == '.' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// URLData is the data the download URL template is rendered with.
type URLData struct {
	Owner   string
	Repo    string
	Tag     string
	Version string
	Archive string
}

// DownloadURL renders the download URL template.
func DownloadURL(tmpl string, data URLData) (string, error) {
	t, err := template.New("url").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse url template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render url template: %w", err)
	}
	return b.String(), nil
}

// Downloads maps release artifacts to formula downloads.
func Downloads(tmpl string, data URLData, arts []artifact.Artifact) ([]Download, error) {
	out := make([]Download, 0, len(arts))
	for _, a := range arts {
		d := data
		d.Archive = a.Name
		url, err := DownloadURL(tmpl, d)
		if err != nil {
			return nil, err
		}
		out = append(out, Download{Platform: a.Platform, URL: url, SHA256: a.SHA256})
	}
	return out, nil
}

var formulaTmpl = template.Must(template.New("formula").Funcs(template.FuncMap{
	"class": ClassName,
}).Parse(`class {{class .Binary}} < Formula
  desc "{{.Description}}"
  homepage "{{.Homepage}}"
  version "{{.Version}}"
{{- if .License}}
  license "{{.License}}"
{{- end}}
{{- range $os := .Systems}}

  on_{{$os.Name}} do
{{- range $os.Downloads}}
    {{.Block}} do
      url "{{.URL}}"
      sha256 "{{.SHA256}}"
    end
{{- end}}
  end
{{- end}}

  def install
    bin.install "{{.Binary}}"
  end

  test do
    system "#{bin}/{{.Binary}}", "--version"
  end
end
`))

type system struct {
	Name      string
	Downloads []Download
}

// Render produces the formula source. Downloads are grouped by OS, macOS
// first, arm before intel within each.
func Render(spec Spec) ([]byte, error) {
	if spec.Binary == "" || spec.Version == "" {
		return nil, fmt.Errorf("formula needs a binary name and version")
	}
	if len(spec.Downloads) == 0 {
		return nil, fmt.Errorf("formula needs at least one download")
	}

	byOS := map[string][]Download{}
	for _, d := range spec.Downloads {
		if d.SHA256 == "" || d.URL == "" {
			return nil, fmt.Errorf("download for %s is missing url or sha256", d.Platform)
		}
		byOS[d.Platform.OS] = append(byOS[d.Platform.OS], d)
	}

	var systems []system
	for _, sys := range []struct{ key, name string }{{"darwin", "macos"}, {"linux", "linux"}} {
		ds := byOS[sys.key]
		if len(ds) == 0 {
			continue
		}
		delete(byOS, sys.key)
		sortDownloads(ds)
		systems = append(systems, system{Name: sys.name, Downloads: ds})
	}
	for key := range byOS {
		return nil, fmt.Errorf("homebrew has no block for %s", key)
	}

	var buf bytes.Buffer
	err := formulaTmpl.Execute(&buf, struct {
		Spec
		Systems []system
	}{spec, systems})
	if err != nil {
		return nil, fmt.Errorf("render formula: %w", err)
	}
	return buf.Bytes(), nil
}

func sortDownloads(ds []Download) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].Block() == "on_arm" && ds[j].Block() != "on_arm"
	})
}
