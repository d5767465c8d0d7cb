// Package blocks implements the interlined-block split, route→block
// preference tables, and time-window driver selection.
package blocks

import (
	"fmt"
	"regexp"
	"strconv"
)

var bracketPattern = regexp.MustCompile(`\[(\d+)\]`)

// Split parses a raw block label like "[01]/[04]" or "[21]/[16] AM" into its
// constituent two-digit block numbers. A label with no bracketed
// numbers returns an empty, non-nil slice.
func Split(label string) []string {
	matches := bracketPattern.FindAllStringSubmatch(label, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%02d", n))
	}
	return out
}

// interlinedAliases maps a few raw labels to their canonical interlined
// form via the alias table.
var interlinedAliases = map[string]string{
	"[01]":      "[01]/[04]",
	"[03]":      "[05]/[03]",
	"[04]":      "[01]/[04]",
	"[05]":      "[05]/[03]",
	"[06]":      "[22]/[06]",
	"[10]":      "[20]/[10]",
	"[15]":      "[26]/[15]",
	"[16] AM":   "[21]/[16] AM",
	"[17]":      "[23]/[17]",
	"[18] AM":   "[24]/[18] AM",
	"[20] AM":   "[20]/[10]",
	"[21] AM":   "[21]/[16] AM",
	"[22] AM":   "[22]/[06]",
	"[23]":      "[23]/[17]",
	"[24] AM":   "[24]/[18] AM",
	"[26] AM":   "[26]/[15]",
}

// Canonicalize converts a raw block label to its canonical interlined form
// when an alias exists, otherwise it returns the label unchanged.
func Canonicalize(raw string) string {
	if canon, ok := interlinedAliases[raw]; ok {
		return canon
	}
	return raw
}

// period is the am/pm/any disambiguation used for block numbers 20-26.
type period int

const (
	periodAny period = iota
	periodAM
	periodPM
)

// periodForBlock infers am/pm/any for a block number: blocks
// 20-26 require disambiguation by shift start hour; all others default to
// "any" and are treated as always matching.
func periodForBlock(blockNum string, startHour int) period {
	n, err := strconv.Atoi(blockNum)
	if err != nil || n < 20 || n > 26 {
		return periodAny
	}
	if startHour < 12 {
		return periodAM
	}
	return periodPM
}

func (p period) String() string {
	switch p {
	case periodAM:
		return "am"
	case periodPM:
		return "pm"
	default:
		return "any"
	}
}
