package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Token counts are estimated at four characters per token.
const charsPerToken = 4

var (
	editLinkRe = regexp.MustCompile(`(?mi)^\[edit[^\]]*\]\([^\)]+\)\s*$`)
	tocRe      = regexp.MustCompile(`(?mi)^#{1,3}\s+(?:table of )?contents?\s*\n(?:\s*[-*]\s*\[.*?\]\(#.*?\)\s*\n)*`)
	installRe  = regexp.MustCompile(`(?mi)^\s*(npm|pnpm|yarn|pip|cargo|brew|apt|go)\s+(install|add|get|i)\b`)
	navLinkRe  = regexp.MustCompile(`^\s*[-*]?\s*\[.*?\]\(.*?\)\s*$`)
	codeFence  = regexp.MustCompile("(?s)```([a-zA-Z0-9_]+)?[[:space:]]*\\n(.*?)\\n[[:space:]]*```")
	headerRe   = regexp.MustCompile(`(?m)^#{1,6}\s`)
)

type ChunkType string

const (
	ChunkTypeProse  ChunkType = "prose"
	ChunkTypeCode   ChunkType = "code"
	ChunkTypeAPI    ChunkType = "api"
	ChunkTypeConfig ChunkType = "config"
	ChunkTypeCmd    ChunkType = "cmd"
)

type ChunkResult struct {
	Content  string
	Type     ChunkType
	Language string
}

// CleanMarkdownNoise strips documentation boilerplate (edit links, generated
// tables of contents) from extracted markdown before chunking.
func CleanMarkdownNoise(text string) string {
	// "Edit this page" style links
	text = editLinkRe.ReplaceAllString(text, "")
	// "## Table of Contents" / "## Contents" followed by anchor-only link lines
	text = tocRe.ReplaceAllString(text, "")

	return text
}

// IsNoiseChunk reports chunks too low-value to embed. Borderline chunks are kept.
func IsNoiseChunk(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) == 0 {
		return true
	}

	// Ultra-short labels ("Overview", "Getting Started")
	words := strings.Fields(trimmed)
	if len(trimmed) < 30 && len(words) <= 3 && !strings.Contains(trimmed, "```") && !strings.Contains(trimmed, "\n") {
		return true
	}

	// Install-only commands
	lines := strings.Split(trimmed, "\n")
	nonEmptyLines := filterNonEmpty(lines)
	if len(nonEmptyLines) > 0 && len(nonEmptyLines) <= 3 {
		allInstall := true
		for _, line := range nonEmptyLines {
			if !installRe.MatchString(line) {
				allInstall = false
				break
			}
		}
		if allInstall {
			return true
		}
	}

	// Pure navigation link lists (>70% of lines are markdown links)
	if len(nonEmptyLines) > 2 {
		linkCount := 0
		for _, line := range nonEmptyLines {
			if navLinkRe.MatchString(line) {
				linkCount++
			}
		}
		if float64(linkCount)/float64(len(nonEmptyLines)) > 0.7 {
			return true
		}
	}

	// Copyright/legal boilerplate
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "©") || strings.Contains(lower, "all rights reserved") ||
		strings.Contains(lower, "terms of service") || strings.Contains(lower, "privacy policy") {
		// Only noise if the chunk is short (not a full legal document that user intentionally indexed)
		if len(trimmed) < 200 {
			return true
		}
	}

	return false
}

func filterNonEmpty(lines []string) []string {
	var result []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			result = append(result, l)
		}
	}
	return result
}

// ChunkMarkdown splits extracted markdown into chunks of roughly maxTokens,
// keeping fenced code blocks intact (and tagged with their language) and
// overlapping consecutive prose pieces by about overlap tokens. Low-value
// noise chunks are dropped.
func ChunkMarkdown(text string, maxTokens, overlap int) []ChunkResult {
	// Pre-process: remove common documentation boilerplate
	text = CleanMarkdownNoise(text)

	var results []ChunkResult

	lastIndex := 0
	matches := codeFence.FindAllStringSubmatchIndex(text, -1)

	for _, match := range matches {
		// 1. Prose before the code block
		if match[0] > lastIndex {
			prose := strings.TrimSpace(text[lastIndex:match[0]])
			if len(prose) > 0 {
				proseChunks := chunkProse(prose, maxTokens, overlap)
				results = append(results, proseChunks...)
			}
		}

		// 2. The code block itself
		lang := ""
		if match[2] != -1 {
			lang = text[match[2]:match[3]]
		}
		content := text[match[4]:match[5]]

		cType := ChunkTypeCode
		if lang == "yaml" || lang == "json" || lang == "toml" {
			cType = ChunkTypeConfig
		} else if lang == "bash" || lang == "sh" || lang == "shell" {
			cType = ChunkTypeCmd
		} else if lang == "http" || lang == "graphql" || lang == "openapi" || lang == "swagger" {
			cType = ChunkTypeAPI
		}

		if len(content)/charsPerToken > maxTokens {
			codeChunks := chunkCode(content, lang, cType, maxTokens)
			results = append(results, codeChunks...)
		} else {
			fullBlock := "```" + lang + "\n" + content + "\n```"
			results = append(results, ChunkResult{
				Content:  fullBlock,
				Type:     cType,
				Language: lang,
			})
		}

		lastIndex = match[1]
	}

	// 3. Remaining prose after the last code block
	if lastIndex < len(text) {
		prose := strings.TrimSpace(text[lastIndex:])
		if len(prose) > 0 {
			proseChunks := chunkProse(prose, maxTokens, overlap)
			results = append(results, proseChunks...)
		}
	}

	// Post-filter: remove noise chunks
	filtered := make([]ChunkResult, 0, len(results))
	for _, chunk := range results {
		if !IsNoiseChunk(chunk.Content) {
			filtered = append(filtered, chunk)
		}
	}

	return filtered
}

// chunkProse splits prose into chunks respecting structure: Headers -> Paragraphs -> Lines -> Words.
// Pieces cut from one oversized section carry the trailing overlap tokens of the previous piece.
func chunkProse(text string, maxTokens, overlap int) []ChunkResult {
	if text == "" {
		return nil
	}

	maxChars := maxTokens * charsPerToken
	overlapChars := overlap * charsPerToken
	budget := maxChars - overlapChars
	if budget < maxChars/2 {
		budget = maxChars / 2
	}

	var chunks []ChunkResult
	for _, section := range splitSections(text) {
		section = strings.TrimSpace(section)
		if len(section) == 0 {
			continue
		}

		if len(section) <= maxChars {
			chunks = append(chunks, ChunkResult{Content: section, Type: detectChunkType(section)})
			continue
		}

		pieces := splitSection(section, budget)
		for i, piece := range pieces {
			if i > 0 && overlapChars > 0 {
				piece = overlapTail(pieces[i-1], overlapChars) + "\n" + piece
			}
			chunks = append(chunks, ChunkResult{Content: piece, Type: detectChunkType(piece)})
		}
	}

	return chunks
}

func splitSections(text string) []string {
	headerIndices := headerRe.FindAllStringIndex(text, -1)

	var sections []string
	lastIdx := 0
	for _, loc := range headerIndices {
		if loc[0] > lastIdx {
			sections = append(sections, text[lastIdx:loc[0]])
		}
		lastIdx = loc[0]
	}
	if lastIdx < len(text) {
		sections = append(sections, text[lastIdx:])
	}
	return sections
}

// splitSection packs paragraphs, then lines, then words into pieces of at most maxChars.
// A single word longer than maxChars is kept whole.
func splitSection(section string, maxChars int) []string {
	acc := &accumulator{max: maxChars}

	for _, para := range strings.Split(section, "\n\n") {
		para = strings.TrimSpace(para)
		if len(para) == 0 || acc.tryAppend(para, "\n\n") {
			continue
		}
		acc.flush()
		if acc.tryAppend(para, "") {
			continue
		}

		for _, line := range strings.Split(para, "\n") {
			if acc.tryAppend(line, "\n") {
				continue
			}
			acc.flush()
			if acc.tryAppend(line, "") {
				continue
			}

			for _, word := range strings.Fields(line) {
				if !acc.tryAppend(word, " ") {
					acc.flush()
					acc.buf.WriteString(word)
				}
			}
		}
	}
	acc.flush()

	return acc.pieces
}

type accumulator struct {
	max    int
	buf    strings.Builder
	pieces []string
}

func (a *accumulator) tryAppend(s, sep string) bool {
	need := len(s)
	if a.buf.Len() > 0 {
		need += len(sep)
	}
	if a.buf.Len()+need > a.max {
		return false
	}
	if a.buf.Len() > 0 {
		a.buf.WriteString(sep)
	}
	a.buf.WriteString(s)
	return true
}

func (a *accumulator) flush() {
	if a.buf.Len() > 0 {
		a.pieces = append(a.pieces, a.buf.String())
		a.buf.Reset()
	}
}

// overlapTail returns roughly the last n bytes of s, starting on a word boundary.
func overlapTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	if idx := strings.IndexAny(s[cut:], " \n\t"); idx >= 0 {
		cut += idx + 1
	}
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return strings.TrimSpace(s[cut:])
}

// chunkCode splits a large code block into smaller chunks by line
func chunkCode(content, lang string, cType ChunkType, maxTokens int) []ChunkResult {
	lines := strings.Split(content, "\n")
	var chunks []ChunkResult

	maxChars := maxTokens * charsPerToken

	var currentChunk strings.Builder
	currentLen := 0

	for _, line := range lines {
		lineLen := len(line) + 1

		if currentLen+lineLen > maxChars && currentLen > 0 {
			chunks = append(chunks, ChunkResult{
				Content:  "```" + lang + "\n" + currentChunk.String() + "\n```",
				Type:     cType,
				Language: lang,
			})
			currentChunk.Reset()
			currentLen = 0
		}

		currentChunk.WriteString(line)
		currentChunk.WriteString("\n")
		currentLen += lineLen
	}

	if currentLen > 0 {
		chunks = append(chunks, ChunkResult{
			Content:  "```" + lang + "\n" + currentChunk.String() + "\n```",
			Type:     cType,
			Language: lang,
		})
	}

	return chunks
}

func detectChunkType(content string) ChunkType {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "swagger") || strings.Contains(lower, "openapi") {
		return ChunkTypeAPI
	}
	// Heuristic: "Endpoint" and "Method" and "URL" usually means API doc
	if strings.Contains(lower, "endpoint") && strings.Contains(lower, "method") && (strings.Contains(lower, "url") || strings.Contains(lower, "http")) {
		return ChunkTypeAPI
	}
	return ChunkTypeProse
}
