package autopoiesis

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptySource is returned when nothing usable is left after sanitizing.
var ErrEmptySource = errors.New("no source left after sanitizing")

var (
	codeStartRe = regexp.MustCompile(`(?m)^[ \t]*(package|import|func)\b`)
	packageRe   = regexp.MustCompile(`^package[ \t]+[A-Za-z_][A-Za-z0-9_]*[ \t]*;?[ \t]*(\n|$)`)
	funcDeclRe  = regexp.MustCompile(`(?m)^[ \t]*func\b`)
)

// Sanitize coerces raw provider output into tool source: imports followed
// by a function declaration, with no package clause. Text that carries no
// function at all is wrapped in a shell named name.
func Sanitize(name, raw string) (string, error) {
	text := extractCodeBlock(raw, "go")

	if loc := codeStartRe.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(packageRe.ReplaceAllString(text, ""))

	if text == "" {
		return "", ErrEmptySource
	}

	if !funcDeclRe.MatchString(text) {
		imports, body := splitImports(text)
		if strings.TrimSpace(body) == "" {
			return "", ErrEmptySource
		}
		text = imports + wrapBody(name, body)
	}

	return trimTrailer(text), nil
}

// extractCodeBlock returns the first fenced block in text, or the whole
// text when there is none. An unclosed fence is dropped.
func extractCodeBlock(text, lang string) string {
	patterns := []string{
		"```" + lang + "\n",
		"```" + lang + "\r\n",
		"```\n",
		"```\r\n",
	}

	for _, pattern := range patterns {
		idx := strings.Index(text, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if end := strings.Index(text[start:], "```"); end != -1 {
			return strings.TrimSpace(text[start : start+end])
		}
		return strings.TrimSpace(text[start:])
	}

	return strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
}

// splitImports separates leading import declarations from the rest.
func splitImports(text string) (imports, body string) {
	lines := strings.Split(text, "\n")
	i := 0
	inBlock := false
scan:
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		switch {
		case inBlock:
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
			}
		case trimmed == "":
		case strings.HasPrefix(trimmed, "import ("), strings.HasPrefix(trimmed, "import("):
			inBlock = !strings.Contains(trimmed, ")")
		case strings.HasPrefix(trimmed, "import "):
		default:
			break scan
		}
	}
	head := strings.TrimSpace(strings.Join(lines[:i], "\n"))
	if head != "" {
		head += "\n\n"
	}
	return head, strings.Join(lines[i:], "\n")
}

func wrapBody(name, body string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(params map[string]interface{}) string {\n", name)
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			sb.WriteString("\n")
			continue
		}
		sb.WriteString("\t" + line + "\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// trimTrailer drops prose after the last line that closes a top-level block.
func trimTrailer(text string) string {
	lines := strings.Split(text, "\n")
	last := -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t\r") == "}" {
			last = i
		}
	}
	if last == -1 {
		return text
	}
	return strings.Join(lines[:last+1], "\n")
}
