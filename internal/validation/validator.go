// Package validation is the cheap first gate of the pipeline: it rejects
// obviously malformed executor output before any LLM-assisted evaluation
// runs. All checks are local and mechanical.
package validation

import (
	"fmt"
	"strings"

	"obra/internal/logging"
	"obra/internal/prompt"
)

// Result is the validator's verdict plus every violation found. A single
// pass collects all violations rather than stopping at the first.
type Result struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations,omitempty"`
}

// Validator checks executor responses against the rules the prompt
// builder declared in the structured header.
type Validator struct {
	syntax *syntaxChecker
}

// New creates a validator.
func New() *Validator {
	return &Validator{syntax: newSyntaxChecker()}
}

// Validate runs every mechanical check against the response.
func (v *Validator) Validate(response string, rules prompt.Rules) Result {
	var violations []string

	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return Result{Passed: false, Violations: []string{"response is empty"}}
	}

	if rules.MinLength > 0 && len(trimmed) < rules.MinLength {
		violations = append(violations,
			fmt.Sprintf("response length %d below minimum %d", len(trimmed), rules.MinLength))
	}

	for _, section := range rules.RequiredSections {
		if !hasSection(trimmed, section) {
			violations = append(violations, fmt.Sprintf("missing required section %q", section))
		}
	}

	for _, field := range rules.SchemaFields {
		if !hasField(trimmed, field) {
			violations = append(violations, fmt.Sprintf("missing schema field %q", field))
		}
	}

	blocks, balanced := extractFences(trimmed)
	if !balanced {
		violations = append(violations, "unbalanced code fences")
	}
	for _, b := range blocks {
		if err := v.syntax.check(b.lang, b.code); err != nil {
			violations = append(violations, fmt.Sprintf("%s code block does not parse: %v", b.lang, err))
		}
	}

	res := Result{Passed: len(violations) == 0, Violations: violations}
	if !res.Passed {
		logging.Get(logging.CategoryValidation).Debug("Validation failed: %v", violations)
	}
	return res
}

// hasSection accepts markdown headings and bare uppercase labels.
func hasSection(text, section string) bool {
	lower := strings.ToLower(text)
	needle := strings.ToLower(section)
	for _, prefix := range []string{"# ", "## ", "### ", ""} {
		for _, line := range strings.Split(lower, "\n") {
			line = strings.TrimSpace(line)
			if prefix == "" {
				if line == needle || strings.HasPrefix(line, needle+":") {
					return true
				}
				continue
			}
			if strings.HasPrefix(line, prefix) && strings.Contains(line[len(prefix):], needle) {
				return true
			}
		}
	}
	return false
}

// hasField looks for "field:" or a JSON-style quoted key.
func hasField(text, field string) bool {
	return strings.Contains(text, field+":") || strings.Contains(text, `"`+field+`"`)
}

// fencedBlock is one ``` block with its declared language.
type fencedBlock struct {
	lang string
	code string
}

// extractFences splits out fenced code blocks and reports whether every
// opener has a closer.
func extractFences(text string) ([]fencedBlock, bool) {
	var blocks []fencedBlock
	lines := strings.Split(text, "\n")
	inBlock := false
	var lang string
	var body []string
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "```") {
			if inBlock {
				blocks = append(blocks, fencedBlock{lang: lang, code: strings.Join(body, "\n")})
				inBlock = false
				body = nil
				continue
			}
			inBlock = true
			lang = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(stripped, "```")))
			continue
		}
		if inBlock {
			body = append(body, line)
		}
	}
	return blocks, !inBlock
}
