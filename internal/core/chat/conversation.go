package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

// historyWindow bounds how many prior messages are replayed as context.
const historyWindow = 20

const titleMaxLen = 50

// ensureConversation loads an existing thread (verifying ownership and
// folder binding) or lazily creates one titled after the first question.
func (o *Orchestrator) ensureConversation(ctx context.Context, userID string, folder *models.Folder, conversationID, question string) (*models.Conversation, error) {
	if conversationID != "" {
		conv, err := o.db.GetConversationByID(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != userID || conv.FolderID != folder.ID {
			return nil, core.ErrNotFound
		}
		return conv, nil
	}

	conv := &models.Conversation{
		ID:       uuid.NewString(),
		UserID:   userID,
		FolderID: folder.ID,
		Title:    titleFrom(question),
	}
	if err := o.db.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func titleFrom(question string) string {
	runes := []rune(question)
	if len(runes) <= titleMaxLen {
		return question
	}
	return string(runes[:titleMaxLen]) + "..."
}

// historyTurns replays the tail of the conversation as prompt context.
func (o *Orchestrator) historyTurns(ctx context.Context, conversationID string) ([]core.PromptTurn, error) {
	msgs, err := o.db.ListRecentMessages(ctx, conversationID, historyWindow)
	if err != nil {
		return nil, err
	}
	turns := make([]core.PromptTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, core.PromptTurn{Role: m.Role, Text: m.Content})
	}
	return turns, nil
}
