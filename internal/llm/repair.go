package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats records what a repair had to do to a body
type RepairStats struct {
	OriginalBytes int           `json:"original_bytes"`
	RepairedBytes int           `json:"repaired_bytes"`
	Strategies    []string      `json:"strategies"`
	RepairTime    time.Duration `json:"repair_time"`
	WasRepaired   bool          `json:"was_repaired"`
}

var (
	trailingCommaObject = regexp.MustCompile(`,\s*}`)
	trailingCommaArray  = regexp.MustCompile(`,\s*]`)
	codeFence           = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

type repairStrategy struct {
	name string
	fix  func(string) string
}

// envelopeStrategies only strip wrapping or stray separators. None of them
// invents content, so a truncated body stays invalid.
var envelopeStrategies = []repairStrategy{
	{"code_fence", unwrapCodeFence},
	{"leading_noise", dropLeadingNoise},
	{"trailing_commas", removeTrailingCommas},
}

// RepairJSON tries to turn an almost-JSON upstream body into valid JSON.
// Strategies run in order:
//  1. Unwrap a markdown code fence
//  2. Drop keep-alive noise before the first '{'
//  3. Remove trailing commas
//  4. Close unterminated objects and arrays
//  5. Fall back to the jsonrepair library
//
// Valid input is returned unchanged. The result is only guaranteed to be
// valid JSON, not a chat completion; callers still check its shape.
// Steps 4 and 5 can turn a cut-off body into valid JSON, so RepairJSON must
// not be used where a partial document would be mistaken for a whole one.
func RepairJSON(raw string) (string, RepairStats, error) {
	strategies := append(append([]repairStrategy{}, envelopeStrategies...), repairStrategy{"completion", completeJSON})
	return repair(raw, strategies, true)
}

// RepairEnvelope applies only steps 1 to 3 of RepairJSON. A truncated body
// is reported as an error rather than closed off.
func RepairEnvelope(raw string) (string, RepairStats, error) {
	return repair(raw, envelopeStrategies, false)
}

func repair(raw string, strategies []repairStrategy, useLibrary bool) (string, RepairStats, error) {
	startTime := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}

	if json.Valid([]byte(raw)) {
		stats.RepairedBytes = len(raw)
		stats.RepairTime = time.Since(startTime)
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired := strings.TrimSpace(raw)

	done := false
	for _, strategy := range strategies {
		next := strategy.fix(repaired)
		if next != repaired {
			repaired = next
			stats.Strategies = append(stats.Strategies, strategy.name)
		}
		if json.Valid([]byte(repaired)) {
			done = true
			break
		}
	}

	if !done && useLibrary {
		libraryRepaired, err := jsonrepair.JSONRepair(repaired)
		if err == nil && libraryRepaired != repaired {
			repaired = libraryRepaired
			stats.Strategies = append(stats.Strategies, "jsonrepair_library")
		}
	}

	stats.RepairedBytes = len(repaired)
	stats.RepairTime = time.Since(startTime)

	if !json.Valid([]byte(repaired)) {
		return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.Strategies))
	}
	return repaired, stats, nil
}

func unwrapCodeFence(body string) string {
	if m := codeFence.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return body
}

// dropLeadingNoise removes anything before the first '{', e.g. SSE style
// ": PROCESSING" comment lines some gateways emit while a model warms up
func dropLeadingNoise(body string) string {
	idx := strings.Index(body, "{")
	if idx <= 0 {
		return body
	}
	return body[idx:]
}

func removeTrailingCommas(body string) string {
	body = trailingCommaObject.ReplaceAllString(body, "}")
	return trailingCommaArray.ReplaceAllString(body, "]")
}

// completeJSON appends the closers for every structure still open, last
// opened first. Brackets inside string literals are ignored.
func completeJSON(body string) string {
	var stack []rune
	inString := false
	escaped := false

	for _, char := range body {
		if inString {
			switch {
			case escaped:
				escaped = false
			case char == '\\':
				escaped = true
			case char == '"':
				inString = false
			}
			continue
		}

		switch char {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == char {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		body += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		body += string(stack[i])
	}
	return body
}
