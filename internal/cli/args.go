// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser parses the arguments of one command.
//
// Supported flag formats:
//
//	--flag value     long flag with a space-separated value
//	--flag=value     long flag with an equals sign
//	-f value         short flag with a space-separated value
//	--flag           boolean flag
//	--               everything after is positional
//
// Flags named in boolFlags never consume the following argument, so
// "ask --json what is rag" keeps the question intact. A value flag given
// more than once keeps every value in order.
type ArgParser struct {
	flags      map[string][]string
	boolFlags  map[string]bool
	knownBools map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw. boolFlags lists flag names (without dashes) that
// never take a value.
//
// Example:
//
//	p := NewArgParser([]string{"show", "t1", "--json", "--file", "a.pdf"}, "json")
//	p.Subcommand()     // "show"
//	p.Positional(1)    // "t1"
//	p.BoolFlag("json") // true
//	p.Flag("file")     // "a.pdf"
func NewArgParser(raw []string, boolFlags ...string) *ArgParser {
	p := &ArgParser{
		flags:      make(map[string][]string),
		boolFlags:  make(map[string]bool),
		knownBools: make(map[string]bool, len(boolFlags)),
		positional: make([]string, 0, len(raw)),
		raw:        raw,
	}
	for _, name := range boolFlags {
		p.knownBools[name] = true
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			key, value := name[:eq], name[eq+1:]
			if p.knownBools[key] || value == "true" || value == "false" {
				b, err := ParseBoolString(value)
				p.boolFlags[key] = err == nil && b
			} else {
				p.flags[key] = append(p.flags[key], value)
			}
			continue
		}

		if !p.knownBools[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = append(p.flags[name], raw[i+1])
			i++
			continue
		}
		p.boolFlags[name] = true
	}

	return p
}

// Subcommand returns the first positional argument.
func (p *ArgParser) Subcommand() string {
	return p.Positional(0)
}

// Flag returns the last value of the first named flag that is set.
// Pass long and short names together: Flag("model", "m").
func (p *ArgParser) Flag(names ...string) string {
	for _, name := range names {
		if vals := p.flags[strings.TrimLeft(name, "-")]; len(vals) > 0 {
			return vals[len(vals)-1]
		}
	}
	return ""
}

// Flags returns every value given for the named flags, in order.
func (p *ArgParser) Flags(names ...string) []string {
	var out []string
	for _, name := range names {
		out = append(out, p.flags[strings.TrimLeft(name, "-")]...)
	}
	return out
}

// FlagIntOrDefault returns the flag as an integer, or def when it is
// missing or malformed.
func (p *ArgParser) FlagIntOrDefault(def int, names ...string) int {
	val := p.Flag(names...)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

// BoolFlag reports whether any of the named boolean flags is set.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, name := range names {
		if p.boolFlags[strings.TrimLeft(name, "-")] {
			return true
		}
	}
	return false
}

// HasFlag reports whether the flag was given in any form.
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, hasValue := p.flags[name]
	_, hasBool := p.boolFlags[name]
	return hasValue || hasBool
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns the positional arguments starting at index.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return []string{}
	}
	return p.positional[index:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// Raw returns the original arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// =============================================================================
// HELPERS
// =============================================================================

// ParseBoolString parses true/false, yes/no, y/n, 1/0 and on/off.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// JoinPositionalArgs joins the positional arguments from startIndex.
func JoinPositionalArgs(p *ArgParser, startIndex int) string {
	return strings.Join(p.PositionalFrom(startIndex), " ")
}
