// Package nutrition turns estimator text into macros and profiles into daily targets.
package nutrition

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ashureev/nutribot/internal/domain"
)

// Extractor parses free-form estimator output into macros.
type Extractor interface {
	Extract(text string) domain.Macros
}

// RegexExtractor is a best-effort text miner. A term that cannot be found,
// or whose number cannot be parsed, yields 0 for that field.
type RegexExtractor struct{}

// NewExtractor returns the default regex-based extractor.
func NewExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

const (
	number    = `\d+(?:[.,]\d+)?`
	lookahead = `[^\d]{0,30}?`
)

var (
	// Calories accept a range such as "500-600"; group 2 is the upper bound.
	caloriesPattern = regexp.MustCompile(`(?i)(?:калори|calor)` + lookahead + `(` + number + `)(?:\s*[-–—]\s*(` + number + `))?`)
	proteinsPattern = regexp.MustCompile(`(?i)(?:бел(?:ок|к)|protein)` + lookahead + `(` + number + `)`)
	fatsPattern     = regexp.MustCompile(`(?i)(?:жир|fat)` + lookahead + `(` + number + `)`)
	carbsPattern    = regexp.MustCompile(`(?i)(?:углевод|carb)` + lookahead + `(` + number + `)`)
)

// Extract finds the first number after each macro term.
func (RegexExtractor) Extract(text string) domain.Macros {
	return domain.Macros{
		Calories: extractCalories(text),
		Proteins: extractSingle(proteinsPattern, text),
		Fats:     extractSingle(fatsPattern, text),
		Carbs:    extractSingle(carbsPattern, text),
	}
}

func extractCalories(text string) int {
	m := caloriesPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	if m[2] != "" {
		return toInt(m[2])
	}
	return toInt(m[1])
}

func extractSingle(re *regexp.Regexp, text string) int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	return toInt(m[1])
}

func toInt(s string) int {
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
