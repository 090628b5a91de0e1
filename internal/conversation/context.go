package conversation

import "context"

type conversationKey struct{}

// WithConversation pins the conversation a query belongs to. Without it the
// orchestrator falls back to the persisted current-conversation pointer.
func WithConversation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

// ConversationFrom returns the conversation id set by WithConversation.
func ConversationFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(conversationKey{}).(string)
	return id, ok && id != ""
}
