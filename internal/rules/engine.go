// Package rules rewrites recognized phrases before wake and command matching.
//
// A rules file holds one rule per line:
//
//	hey total => hey turtle        literal, case-insensitive
//	s/\bgr[ae]b+\b/grab/g          sed-style regex; flags i, g, m, s
//
// Blank lines and lines starting with # are ignored.
package rules

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultPassLimit = 30

// WakeAliases covers common recognizer mis-hearings of the wake phrase.
var WakeAliases = []string{
	"hey total => hey turtle",
	"hey tuttle => hey turtle",
	"hay turtle => hey turtle",
	"hey kurtle => hey turtle",
}

// Config selects where rules come from. File rules run first, then inline
// rules, then the built-in wake aliases.
type Config struct {
	Path        string
	Inline      []string
	WakeAliases bool
	PassLimit   int
}

type rewriter interface {
	rewrite(input string) (string, bool)
}

// Engine applies rewrites until the text stops changing.
type Engine struct {
	rewriters []rewriter
	passLimit int
}

// Load builds an engine from cfg. A missing rules file is not an error.
func Load(cfg Config) (*Engine, error) {
	var lines []string

	if path := strings.TrimSpace(cfg.Path); path != "" {
		fileLines, err := readLines(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
		}
		if err == nil {
			if _, err := parse(fileLines); err != nil {
				return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
			}
			lines = append(lines, fileLines...)
		}
	}

	lines = append(lines, cfg.Inline...)
	if cfg.WakeAliases {
		lines = append(lines, WakeAliases...)
	}
	return Parse(lines, cfg.PassLimit)
}

// Parse compiles rule lines into an engine.
func Parse(lines []string, passLimit int) (*Engine, error) {
	if passLimit <= 0 {
		passLimit = defaultPassLimit
	}
	rewriters, err := parse(lines)
	if err != nil {
		return nil, err
	}
	return &Engine{rewriters: rewriters, passLimit: passLimit}, nil
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int {
	return len(e.rewriters)
}

// Apply rewrites text. It never fails today; the error keeps the
// ports.RulesEngine contract open for engines that can.
func (e *Engine) Apply(text string) (string, error) {
	result := text
	for pass := 0; pass < e.passLimit && len(e.rewriters) > 0; pass++ {
		changed := false
		for _, r := range e.rewriters {
			if next, ok := r.rewrite(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func parse(lines []string) ([]rewriter, error) {
	out := make([]rewriter, 0, len(lines))
	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			r   rewriter
			err error
		)
		switch {
		case isSedRule(line):
			r, err = parseSed(line)
		case strings.Contains(line, "=>"):
			r, err = parseAlias(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

type aliasRule struct {
	pattern     *regexp.Regexp
	replacement string
}

func parseAlias(line string) (rewriter, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("alias source cannot be empty")
	}
	return aliasRule{
		pattern:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(from)),
		replacement: strings.ReplaceAll(to, "$", "$$"),
	}, nil
}

func (r aliasRule) rewrite(input string) (string, bool) {
	output := r.pattern.ReplaceAllString(input, r.replacement)
	return output, output != input
}

type sedRule struct {
	pattern     *regexp.Regexp
	replacement string
	global      bool
}

// isSedRule matches s<delim>... where the delimiter is punctuation.
func isSedRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordOrSpace(line[1])
}

func parseSed(line string) (rewriter, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, rest, err := splitDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	// Matching is case-insensitive unless stated otherwise; spoken text has
	// no reliable casing.
	prefix := "i"
	global := false
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'i', ' ':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(prefix, flag) {
				prefix += string(flag)
			}
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	compiled, err := regexp.Compile("(?" + prefix + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return sedRule{pattern: compiled, replacement: replacement, global: global}, nil
}

func (r sedRule) rewrite(input string) (string, bool) {
	if r.global {
		output := r.pattern.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.pattern.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.pattern.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// splitDelimited reads up to an unescaped delim and returns the text before
// it and the remainder after it. Escapes are kept for the regex compiler.
func splitDelimited(s string, delim byte) (string, string, error) {
	var b strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == delim:
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(c)
	}
	return "", "", errors.New("unterminated expression")
}

func isWordOrSpace(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == ' ' || c == '\t'
}
