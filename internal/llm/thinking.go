package llm

import "strings"

var thinkingMarkers = []string{
	"思考过程", "分析过程", "reasoning", "思考", "分析逻辑",
	"判断理由", "决策理由", "分析思路",
}

var thinkingEndMarkers = []string{"\n\n### ", "\n## ", "```", "---"}

const maxThinkingLen = 2000

// extractThinking scans raw LLM response content for a reasoning-process
// marker and returns the section starting at that marker (marker included),
// cut at the first end marker found after its first 50 bytes and
// truncated to maxThinkingLen.
// It returns "" when no marker is present — callers should not treat that as
// an error, just as "no visible reasoning to retain".
func extractThinking(content string) string {
	for _, marker := range thinkingMarkers {
		idx := strings.Index(content, marker)
		if idx < 0 {
			continue
		}
		section := content[idx:]
		section = truncateAtEndMarker(section)
		return truncate(section, maxThinkingLen)
	}
	return ""
}

func truncateAtEndMarker(section string) string {
	if len(section) <= 50 {
		return section
	}
	for _, end := range thinkingEndMarkers {
		if rest := section[50:]; strings.Contains(rest, end) {
			if cut := strings.Index(section[50:], end); cut >= 0 {
				return section[:50+cut]
			}
		}
	}
	return section
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
