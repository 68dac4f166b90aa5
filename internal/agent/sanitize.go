package agent

import (
	"regexp"
	"strings"
)

// thinkBlock matches reasoning blocks some models emit before the answer.
var thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)

// fenceOpen matches an opening markdown fence with an optional language tag.
var fenceOpen = regexp.MustCompile("^```[a-zA-Z0-9_+-]*\n")

// SanitizeResponse strips model artifacts from a raw completion: thinking
// blocks, wrapping markdown code fences, and stray trailing backticks.
// It is a pure text transform with no knowledge of the target language,
// kept separate so its heuristics stay unit-testable without a model.
func SanitizeResponse(response string) string {
	response = thinkBlock.ReplaceAllString(response, "")
	response = strings.TrimSpace(response)

	// Unwrap a fenced block when the fence spans the whole response.
	if fenceOpen.MatchString(response) && strings.HasSuffix(response, "```") {
		response = fenceOpen.ReplaceAllString(response, "")
		response = strings.TrimSuffix(response, "```")
	} else if strings.HasPrefix(response, "```") {
		// Opening fence without a matching close: drop the first line.
		if idx := strings.IndexByte(response, '\n'); idx >= 0 {
			response = response[idx+1:]
		}
	}

	response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	return strings.TrimSpace(response)
}
