// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - "did you mean" hints for mistyped commands.
package cli

import (
	"sort"
	"strings"
)

// slashCommands lists the interactive chat commands, aliases included.
var slashCommands = []string{
	"/help", "/quit", "/exit", "/new", "/threads", "/ls", "/switch",
	"/delete", "/history", "/refresh", "/edit", "/prev", "/next",
	"/attach", "/remote", "/detach", "/model", "/models", "/retry",
	"/export",
}

// commandList returns the command names and aliases in a stable order.
func commandList() []string {
	names := make([]string, 0, len(commandNames))
	for name := range commandNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SuggestCommand returns the command closest to input, or "" when none is
// close enough. Exact matches return "".
func SuggestCommand(input string) string {
	return suggest(strings.ToLower(input), commandList())
}

// suggestSlashCommand is SuggestCommand for chat slash commands.
func suggestSlashCommand(input string) string {
	return suggest(strings.ToLower(input), slashCommands)
}

func suggest(input string, candidates []string) string {
	if len(strings.TrimPrefix(input, "/")) < 2 {
		return ""
	}

	// 1 edit up to 3 chars, 2 up to 8, then 3.
	maxDistance := 1
	if len(input) >= 4 {
		maxDistance = 2
	}
	if len(input) > 8 {
		maxDistance = 3
	}

	best, bestDistance := "", -1
	for _, cmd := range candidates {
		d := levenshteinDistance(input, cmd)
		if d == 0 {
			return ""
		}
		if d <= maxDistance && (bestDistance == -1 || d < bestDistance) {
			best, bestDistance = cmd, d
		}
	}
	return best
}

// levenshteinDistance is the number of single-byte insertions, deletions
// or substitutions turning s1 into s2.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
