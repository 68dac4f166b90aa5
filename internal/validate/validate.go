// Package validate is the validation adapter for generated content.
//
// Validate is a pure function: identical input always yields identical
// diagnostics, it performs no I/O, and it never panics — unparsable input
// is reported as a syntax error rather than raised.
package validate

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrison/maestro/internal/models"
)

// Kind identifies the content kind submitted for validation.
type Kind string

const (
	KindGo     Kind = "go"
	KindPython Kind = "python"
	KindJSON   Kind = "json"
	KindYAML   Kind = "yaml"
	KindText   Kind = "text"
)

// KindFromFilename maps a file name to a validation kind by extension.
// Unrecognized extensions fall back to KindText, which always validates.
func KindFromFilename(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".go":
		return KindGo
	case ".py":
		return KindPython
	case ".json":
		return KindJSON
	case ".yaml", ".yml":
		return KindYAML
	default:
		return KindText
	}
}

// Validate checks content against the rules for its kind and returns
// structured diagnostics. The result is valid when no errors were found;
// warnings and suggestions do not affect validity.
func Validate(content string, kind Kind) models.ValidationResult {
	switch kind {
	case KindJSON:
		return validateJSON(content)
	case KindYAML:
		return validateYAML(content)
	case KindGo:
		return validateSource(content, kind)
	case KindPython:
		return validateSource(content, kind)
	default:
		return models.ValidationResult{Valid: true}
	}
}

func validateJSON(content string) models.ValidationResult {
	if strings.TrimSpace(content) == "" {
		return syntaxFailure("content is empty", "line 1")
	}

	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		location := "line 1"
		if syntaxErr, ok := err.(*json.SyntaxError); ok {
			location = fmt.Sprintf("line %d", lineAtOffset(content, syntaxErr.Offset))
		}
		return syntaxFailure(err.Error(), location)
	}
	return models.ValidationResult{Valid: true}
}

func validateYAML(content string) models.ValidationResult {
	if strings.TrimSpace(content) == "" {
		return syntaxFailure("content is empty", "line 1")
	}

	var v any
	if err := yaml.Unmarshal([]byte(content), &v); err != nil {
		// yaml errors already carry "line N" markers; keep the message as-is.
		return syntaxFailure(err.Error(), "")
	}
	return models.ValidationResult{Valid: true}
}

// validateSource applies lightweight structural checks to source code:
// balanced delimiters, terminated strings, and per-language conventions.
// It is deliberately not a full parser — the goal is to catch truncated
// or fence-mangled LLM output before it reaches disk.
func validateSource(content string, kind Kind) models.ValidationResult {
	result := models.ValidationResult{Valid: true}

	if strings.TrimSpace(content) == "" {
		return syntaxFailure("content is empty", "line 1")
	}

	if issue := checkDelimiters(content, kind); issue != nil {
		result.Valid = false
		result.Errors = append(result.Errors, *issue)
	}

	if strings.Contains(content, "```") {
		result.Valid = false
		result.Errors = append(result.Errors, models.ValidationIssue{
			Kind:     "syntax",
			Location: fmt.Sprintf("line %d", lineOfSubstring(content, "```")),
			Message:  "markdown code fence found in source output",
		})
		result.Suggestions = append(result.Suggestions, "strip markdown fences before writing the file")
	}

	switch kind {
	case KindGo:
		if !strings.HasPrefix(strings.TrimSpace(content), "package ") {
			result.Warnings = append(result.Warnings, models.ValidationIssue{
				Kind:     "structure",
				Location: "line 1",
				Message:  "missing package clause",
			})
		}
	case KindPython:
		if strings.Contains(content, "\t ") || strings.Contains(content, " \t") {
			result.Warnings = append(result.Warnings, models.ValidationIssue{
				Kind:     "style",
				Location: fmt.Sprintf("line %d", lineOfSubstring(content, "\t")),
				Message:  "mixed tabs and spaces in indentation",
			})
		}
	}

	if !result.Valid {
		result.Suggestions = append(result.Suggestions, "enable stricter validation and auto-correction on retry")
	}
	return result
}

// checkDelimiters scans for unbalanced brackets and unterminated strings.
// String and comment regions are skipped so that brackets inside them do
// not count. Multi-line string forms are honored per language: Python
// triple-quoted strings and Go backtick raw strings (which have no escape
// sequences) may span lines. Returns nil when the content is balanced.
func checkDelimiters(content string, kind Kind) *models.ValidationIssue {
	type open struct {
		ch   byte
		line int
	}
	var stack []open
	line := 1

	var inString byte // current quote char, 0 when outside
	var stringLine int
	var inRaw bool // inside a backtick raw string
	var rawLine int
	var triple byte // quote char of an open triple-quoted string, 0 when outside
	var tripleLine int
	inLineComment := false

	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	for i := 0; i < len(content); i++ {
		c := content[i]
		if c == '\n' {
			line++
			inLineComment = false
			// Single-quoted and double-quoted strings do not span lines.
			if inString != 0 {
				return &models.ValidationIssue{
					Kind:     "syntax",
					Location: fmt.Sprintf("line %d", stringLine),
					Message:  "unterminated string literal",
				}
			}
			continue
		}
		if inLineComment {
			continue
		}
		if inRaw {
			// Raw strings have no escapes; a backslash is just a character.
			if c == '`' {
				inRaw = false
			}
			continue
		}
		if triple != 0 {
			if c == triple && strings.HasPrefix(content[i:], strings.Repeat(string(triple), 3)) {
				triple = 0
				i += 2
			}
			continue
		}
		if inString != 0 {
			if c == '\\' {
				i++ // skip escaped char
			} else if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '#':
			if kind == KindPython {
				inLineComment = true
			}
		case '/':
			if kind == KindGo && i+1 < len(content) && content[i+1] == '/' {
				inLineComment = true
			}
		case '"', '\'':
			if kind == KindPython && strings.HasPrefix(content[i:], strings.Repeat(string(c), 3)) {
				triple = c
				tripleLine = line
				i += 2
			} else {
				inString = c
				stringLine = line
			}
		case '`':
			if kind == KindGo {
				inRaw = true
				rawLine = line
			}
		case '(', '[', '{':
			stack = append(stack, open{ch: c, line: line})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
				return &models.ValidationIssue{
					Kind:     "syntax",
					Location: fmt.Sprintf("line %d", line),
					Message:  fmt.Sprintf("unexpected closing %q", string(c)),
				}
			}
			stack = stack[:len(stack)-1]
		}
	}

	if inString != 0 {
		return &models.ValidationIssue{
			Kind:     "syntax",
			Location: fmt.Sprintf("line %d", stringLine),
			Message:  "unterminated string literal",
		}
	}
	if inRaw {
		return &models.ValidationIssue{
			Kind:     "syntax",
			Location: fmt.Sprintf("line %d", rawLine),
			Message:  "unterminated raw string literal",
		}
	}
	if triple != 0 {
		return &models.ValidationIssue{
			Kind:     "syntax",
			Location: fmt.Sprintf("line %d", tripleLine),
			Message:  "unterminated triple-quoted string",
		}
	}
	if len(stack) > 0 {
		last := stack[len(stack)-1]
		return &models.ValidationIssue{
			Kind:     "syntax",
			Location: fmt.Sprintf("line %d", last.line),
			Message:  fmt.Sprintf("unclosed %q", string(last.ch)),
		}
	}
	return nil
}

func syntaxFailure(message, location string) models.ValidationResult {
	return models.ValidationResult{
		Valid: false,
		Errors: []models.ValidationIssue{{
			Kind:     "syntax",
			Location: location,
			Message:  message,
		}},
		Suggestions: []string{"enable stricter validation and auto-correction on retry"},
	}
}

func lineAtOffset(content string, offset int64) int {
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	return 1 + strings.Count(content[:offset], "\n")
}

func lineOfSubstring(content, sub string) int {
	idx := strings.Index(content, sub)
	if idx < 0 {
		return 1
	}
	return 1 + strings.Count(content[:idx], "\n")
}
