// Package notes writes release notes from the commit log.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keithhendry/dotty/internal/backend"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/version"
	"github.com/keithhendry/dotty/internal/vcs"
)

// Section headings, in output order.
const (
	SectionBreaking = "Breaking Changes"
	SectionFeatures = "Features"
	SectionFixes    = "Fixes"
	SectionOther    = "Other"
)

var sections = []string{SectionBreaking, SectionFeatures, SectionFixes, SectionOther}

// Input is what notes are written from.
type Input struct {
	Version     string
	Tag         string
	PreviousTag string
	Commits     []vcs.Commit
	// Archives lists attached archive names.
	Archives []string
}

// Render produces grouped markdown notes. Commits appear oldest first within
// each section. Merge commits are dropped.
func Render(in Input) string {
	groups := make(map[string][]string, len(sections))
	for i := len(in.Commits) - 1; i >= 0; i-- {
		c := in.Commits[i]
		if strings.HasPrefix(c.Subject, "Merge ") {
			continue
		}
		section, line := classify(c)
		groups[section] = append(groups[section], line)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", in.Tag)
	if in.PreviousTag != "" {
		fmt.Fprintf(&b, "\nChanges since %s.\n", in.PreviousTag)
	}
	for _, s := range sections {
		if len(groups[s]) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n\n", s)
		for _, line := range groups[s] {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if len(in.Commits) == 0 {
		b.WriteString("\nNo changes recorded.\n")
	}
	if len(in.Archives) > 0 {
		b.WriteString("\n### Downloads\n\n")
		for _, a := range in.Archives {
			fmt.Fprintf(&b, "- `%s`\n", a)
		}
	}
	return b.String()
}

func classify(c vcs.Commit) (string, string) {
	cc, ok := version.ParseCommit(c)
	short := c.Hash
	if len(short) > 7 {
		short = short[:7]
	}
	if !ok {
		return SectionOther, fmt.Sprintf("%s (%s)", c.Subject, short)
	}

	line := cc.Description
	if cc.Scope != "" {
		line = fmt.Sprintf("**%s:** %s", cc.Scope, cc.Description)
	}
	line = fmt.Sprintf("%s (%s)", line, short)

	switch {
	case cc.Breaking:
		return SectionBreaking, line
	case cc.Type == "feat":
		return SectionFeatures, line
	case cc.Type == "fix" || cc.Type == "perf":
		return SectionFixes, line
	default:
		return SectionOther, line
	}
}

const summaryPrompt = `Rewrite the following release notes for %s as a short summary paragraph
for end users, followed by the original sections unchanged. Reply with markdown only.

%s`

// Generator writes notes, optionally summarised by a language model.
type Generator struct {
	llm       backend.LLMBackend
	model     string
	maxTokens int
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithSummariser makes the generator pass the plain notes through llm.
func WithSummariser(llm backend.LLMBackend, model string, maxTokens int) Option {
	return func(g *Generator) {
		g.llm, g.model, g.maxTokens = llm, model, maxTokens
	}
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{logger: logging.New("notes")}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the notes for in. A summariser failure falls back to the
// plain notes and is only logged.
func (g *Generator) Generate(ctx context.Context, in Input) string {
	plain := Render(in)
	if g.llm == nil || len(in.Commits) == 0 {
		return plain
	}

	summary, err := g.llm.Generate(ctx, fmt.Sprintf(summaryPrompt, in.Tag, plain), g.model, g.maxTokens)
	if err != nil {
		g.logger.Warn("summariser failed, using plain notes", "backend", g.llm.Name(), "error", err)
		return plain
	}
	if strings.TrimSpace(summary) == "" {
		g.logger.Warn("summariser returned nothing, using plain notes", "backend", g.llm.Name())
		return plain
	}
	return summary
}
