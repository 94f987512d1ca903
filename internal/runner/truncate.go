package runner

import "github.com/chatmesh/gateway/internal/model"

// Truncate walks history from newest to oldest, accumulating per-turn token
// counts, and returns the suffix that fits within maxTokens. It never starts
// the returned suffix in the middle of a tool-call/tool-result block.
// maxTokens <= 0 means no limit.
func Truncate(history []model.Message, maxTokens int) []model.Message {
	if maxTokens <= 0 || len(history) == 0 {
		return history
	}

	kept := 0
	budget := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := history[i].TokenCount
		if budget+cost > maxTokens && kept > 0 {
			break
		}
		budget += cost
		kept++
	}
	start := len(history) - kept
	start = alignToSafeBoundary(history, start)
	return history[start:]
}

// alignToSafeBoundary nudges start earlier until it does not begin in the
// middle of a tool-call/tool-result block: a tool message at start must be
// preceded (kept) by the assistant message that issued the calls.
func alignToSafeBoundary(history []model.Message, start int) int {
	for start > 0 && start < len(history) && history[start].Role == model.RoleTool {
		start--
	}
	return start
}
