// Package pipeline implements the Extract → Prepare → EmbedAndStore state
// machine that turns one vault file into stored, searchable chunks.
package pipeline

import (
	"bytes"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/storage"
)

var (
	imageRe   = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)\)`)
	headingRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// extraction is the output of the Extract stage.
type extraction struct {
	Title string
	Pages []models.PageUnit
}

// extractor turns a vault file into ordered pages of text plus any embedded
// image references it can resolve.
type extractor struct {
	store        storage.Provider
	maxPageChars int
	logger       *slog.Logger
}

// extract reads and parses the file at relPath. Unsupported or unreadable
// input is an error; the pipeline maps it to a Failed outcome.
func (e *extractor) extract(relPath string) (*extraction, error) {
	kind := e.store.Kind(relPath)
	if kind == "" {
		return nil, fmt.Errorf("extract: unsupported file type: %s", relPath)
	}
	data, err := e.store.Read(relPath)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if !utf8Valid(data) {
		return nil, fmt.Errorf("extract: %s is not valid UTF-8 text", relPath)
	}

	var title, body string
	switch kind {
	case "markdown":
		var fm map[string]any
		fm, body = splitFrontmatter(data)
		title = deriveTitle(fm, body, relPath)
	default:
		body = string(data)
		title = strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))
	}

	pages := make([]models.PageUnit, 0, 4)
	for i, text := range splitPages(body, e.maxPageChars) {
		page := models.PageUnit{Number: i + 1, Text: text}
		if kind == "markdown" {
			page.Images = e.resolveImages(relPath, text)
		}
		pages = append(pages, page)
	}
	return &extraction{Title: title, Pages: pages}, nil
}

// resolveImages loads the bytes of every local image referenced in text.
// Remote URLs and unreadable files are skipped with a warning; a missing
// image never fails extraction.
func (e *extractor) resolveImages(relPath, text string) []models.ImageRef {
	var out []models.ImageRef
	for _, m := range imageRe.FindAllStringSubmatch(text, -1) {
		src := m[1]
		if strings.Contains(src, "://") {
			continue
		}
		resolved := path.Join(path.Dir(relPath), src)
		data, err := e.store.Read(resolved)
		if err != nil {
			e.logger.Warn("extract: image read failed",
				slog.String("file", relPath),
				slog.String("image", src),
				slog.String("error", err.Error()))
			out = append(out, models.ImageRef{Source: src})
			continue
		}
		out = append(out, models.ImageRef{Source: src, Data: data})
	}
	return out
}

// splitPages splits body into pages on thematic breaks (--- on its own
// line); pages larger than maxChars are further split at paragraph
// boundaries so no single page overwhelms downstream calls.
func splitPages(body string, maxChars int) []string {
	var pages []string
	for _, part := range regexp.MustCompile(`(?m)^---\s*$`).Split(body, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if maxChars <= 0 || len(part) <= maxChars {
			pages = append(pages, part)
			continue
		}
		pages = append(pages, splitOversized(part, maxChars)...)
	}
	if len(pages) == 0 && strings.TrimSpace(body) != "" {
		pages = []string{strings.TrimSpace(body)}
	}
	return pages
}

// splitOversized greedily packs paragraphs into pages of at most maxChars.
// A single paragraph longer than maxChars becomes its own page.
func splitOversized(text string, maxChars int) []string {
	paras := strings.Split(text, "\n\n")
	var pages []string
	var cur strings.Builder
	for _, para := range paras {
		if cur.Len() > 0 && cur.Len()+len(para)+2 > maxChars {
			pages = append(pages, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if strings.TrimSpace(cur.String()) != "" {
		pages = append(pages, strings.TrimSpace(cur.String()))
	}
	return pages
}

// splitFrontmatter separates YAML frontmatter (between leading ---
// delimiters) from the Markdown body. Invalid or absent frontmatter means
// the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// deriveTitle prefers frontmatter title, then the first H1 heading, then
// the file name.
func deriveTitle(fm map[string]any, body, relPath string) string {
	if fm != nil {
		if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	if m := headingRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))
}

func utf8Valid(data []byte) bool {
	// Binary content (e.g. a renamed PDF) shows up as NUL bytes long before
	// UTF-8 validation fails.
	return !bytes.ContainsRune(data, 0x00) && strings.ToValidUTF8(string(data), "") == string(data)
}
