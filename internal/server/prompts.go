package server

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/simplexity/internal/helpers"
	"github.com/mohammad-safakhou/simplexity/models"
)

const answerSystemPrompt = `You are a helpful AI assistant that answers questions based on search results. Your task is to:
1. Analyze the provided search results
2. Generate a comprehensive, accurate answer to the user's question
3. Include inline citations using [1], [2], etc. to reference specific sources
4. Only use information from the provided sources
5. If the sources don't contain enough information, acknowledge this
6. Write in a clear, informative style

IMPORTANT: When citing sources, use the format [1], [2], etc. to reference the numbered sources provided.`

// suggestHistoryWindow bounds the history quoted in the follow-up prompt.
const suggestHistoryWindow = 4

func answerUserPrompt(query string, sources []models.SearchResult, history []models.Message) string {
	var b strings.Builder
	if h := historyContext(history, "User", "Assistant"); h != "" {
		b.WriteString("Previous conversation:\n")
		b.WriteString(h)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "User's question: %s\n\nSearch results:\n%s\n\n", query, helpers.FormatSources(sources))
	b.WriteString("Please provide a comprehensive answer to the user's question, using inline citations [1], [2], etc. to reference the sources above.")
	return b.String()
}

func suggestPrompt(req models.SuggestRequest) string {
	history := req.ConversationHistory
	if len(history) > suggestHistoryWindow {
		history = history[len(history)-suggestHistoryWindow:]
	}
	return fmt.Sprintf(`Based on this conversation, suggest 3-5 natural follow-up questions a curious user might ask next.

Conversation history:
%s

Current question: %s
Current answer: %s

Generate questions that:
- Go deeper into interesting aspects mentioned in the answer
- Explore related angles not yet covered
- Are specific and actionable (not vague like "tell me more")
- Feel natural as follow-ups to this conversation
- Are phrased as complete questions (not fragments)

Return ONLY the questions, one per line, without numbering, bullets, or any other formatting.`,
		historyContext(history, "Q", "A"), req.CurrentQuery, req.CurrentAnswer)
}

func historyContext(history []models.Message, queryLabel, answerLabel string) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		switch m.Type {
		case models.MessageTypeQuery:
			lines = append(lines, queryLabel+": "+m.Content)
		case models.MessageTypeAnswer:
			lines = append(lines, answerLabel+": "+m.Content)
		}
	}
	return strings.Join(lines, "\n\n")
}
