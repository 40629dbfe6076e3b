package agent

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chorusnet/chorus/pkg/models"
)

// Builtin handlers usable by agentd and the demos. Real deployments bind
// their own logic; these exist so the network does something useful out of
// the box.

// BuiltinSkills maps skill names to their handlers.
var BuiltinSkills = map[string]Handler{
	"echo":         SkillEcho,
	"analyze_text": SkillTextAnalyzer,
	"calculate":    SkillCalculator,
}

// SkillEcho returns the input unchanged under an "echo" key.
func SkillEcho(input models.Payload) (models.Payload, error) {
	return models.Payload{"echo": input}, nil
}

// SkillTextAnalyzer extracts numbers from free text. The first number found
// becomes "primary_number"; all of them land in "all_numbers".
func SkillTextAnalyzer(input models.Payload) (models.Payload, error) {
	text, _ := input["text"].(string)

	var numbers []int
	for _, word := range strings.Fields(strings.ReplaceAll(text, ",", "")) {
		cleaned := strings.Trim(word, "$€£.;:")
		if n, err := strconv.Atoi(cleaned); err == nil {
			numbers = append(numbers, n)
		}
	}

	primary := 0
	if len(numbers) > 0 {
		primary = numbers[0]
	}
	// Truncate by runes so a multi-byte character is never split.
	if runes := []rune(text); len(runes) > 100 {
		text = string(runes[:100])
	}
	return models.Payload{
		"primary_number": primary,
		"all_numbers":    numbers,
		"source_text":    text,
	}, nil
}

// SkillCalculator performs basic arithmetic on "primary_number" (falling
// back to "number"). Operations: double (default), square, projection.
func SkillCalculator(input models.Payload) (models.Payload, error) {
	number, ok := asFloat(input["primary_number"])
	if !ok {
		number, _ = asFloat(input["number"])
	}

	operation, _ := input["operation"].(string)
	switch operation {
	case "", "double":
		return models.Payload{"result": number * 2}, nil
	case "square":
		return models.Payload{"result": number * number}, nil
	case "projection":
		rate, ok := asFloat(input["growth_rate"])
		if !ok {
			rate = 0.15
		}
		periods, ok := asFloat(input["periods"])
		if !ok {
			periods = 4
		}
		projected := number * math.Pow(1+rate, periods)
		return models.Payload{
			"original":  number,
			"projected": math.Round(projected*100) / 100,
			"rate":      rate,
		}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", operation)
	}
}

// asFloat coerces the numeric types that survive a JSON round trip.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
