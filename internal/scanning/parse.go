package scanning

import "strings"

// cleanTranscript strips the wrappers LLM backends sometimes put around a transcription
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if i := strings.IndexByte(text, '\n'); i >= 0 && !strings.ContainsAny(text[:i], " \t") {
			// drop a language tag such as ```text
			text = text[i+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	return strings.TrimSpace(text)
}
