// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"fmt"
	"strings"
	"unicode"
)

// CTM (compact tree markup) is one node per line, the depth given by the
// number of leading '>' characters.

const (
	maxBranches = 6
	maxLeaves   = 4
	maxLabel    = 48
)

var ctmEscaper = strings.NewReplacer(`\`, `\\`, `>`, `\>`, `|`, `\|`, `:`, `\:`, `,`, `\,`)

// draftCTM builds a mindmap of text: the title as root, one branch per
// sentence and the longest words of each sentence as leaves. A malformed
// draft skips a level under the first branch.
func draftCTM(title, text string, malformed bool) string {
	var b strings.Builder
	b.WriteString(label(title, "Mindmap"))

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	if len(sentences) > maxBranches {
		sentences = sentences[:maxBranches]
	}

	for i, s := range sentences {
		b.WriteString("\n>")
		b.WriteString(label(s, fmt.Sprintf("Topic %d", i+1)))

		prefix := ">>"
		leaves := keywords(s, maxLeaves)
		if malformed && i == 0 {
			prefix = ">>>"
			if len(leaves) == 0 {
				leaves = []string{"Details"}
			}
		}
		for _, w := range leaves {
			b.WriteString("\n" + prefix)
			b.WriteString(label(w, w))
		}
	}
	return b.String()
}

// validateCTM checks the structural rules of a CTM document and returns a
// message describing the first violation.
func validateCTM(doc string) (bool, string) {
	lines := make([]string, 0)
	for _, l := range strings.Split(strings.TrimSpace(doc), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return false, "Input is empty. Expected CTM format content."
	}

	prev := 0
	for i, l := range lines {
		lvl := level(l)
		if i == 0 && lvl != 0 {
			return false, fmt.Sprintf("Line 1: Root node must not have any '>' prefix. Found %d '>' character(s).", lvl)
		}
		if i > 0 && lvl == 0 {
			return false, fmt.Sprintf("Line %d: Only one root node is allowed.", i+1)
		}
		if lvl > prev+1 {
			return false, fmt.Sprintf("Line %d: Level jumped from %d to %d. Levels must increase by exactly one.", i+1, prev, lvl)
		}
		rest := l[lvl:]
		if strings.TrimSpace(rest) == "" {
			return false, fmt.Sprintf("Line %d: Node label is empty.", i+1)
		}
		if strings.HasPrefix(rest, " ") {
			return false, fmt.Sprintf("Line %d: No spaces allowed after '>'.", i+1)
		}
		prev = lvl
	}
	return true, fmt.Sprintf("Valid CTM with %d nodes.", len(lines))
}

func level(line string) int {
	n := 0
	for n < len(line) && line[n] == '>' {
		n++
	}
	return n
}

func label(s, fallback string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		s = fallback
	}
	r := []rune(s)
	if len(r) > maxLabel {
		s = strings.TrimSpace(string(r[:maxLabel])) + "..."
	}
	return ctmEscaper.Replace(s)
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func keywords(sentence string, n int) []string {
	words := strings.FieldsFunc(sentence, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, n)
	for _, w := range words {
		if len([]rune(w)) < 5 || seen[strings.ToLower(w)] {
			continue
		}
		seen[strings.ToLower(w)] = true
		out = append(out, w)
		if len(out) == n {
			break
		}
	}
	return out
}
