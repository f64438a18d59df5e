package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

type orchFixture struct {
	db      *fakeDB
	llm     *fakeLLM
	fresher *fakeFresher
	orch    *Orchestrator
	folder  *models.Folder
}

func newOrchFixture(t *testing.T, mode string) *orchFixture {
	t.Helper()

	db := newFakeDB()
	folder := &models.Folder{
		ID:         "folder-1",
		UserID:     "user-1",
		Name:       "Research",
		Status:     models.FolderReady,
		IndexMode:  mode,
		EmbedModel: "fake-embed",
	}
	require.NoError(t, db.CreateFolder(context.Background(), folder))
	require.NoError(t, db.ReplaceSourceFiles(context.Background(), folder.ID, []models.SourceFile{
		{ID: "sf-1", FolderID: folder.ID, Name: "report.pdf", MimeType: "application/pdf"},
	}))

	llm := &fakeLLM{}
	fresher := &fakeFresher{files: []core.NativeFile{
		{Name: "report.pdf", URI: "https://files.example/report", MimeType: "application/pdf"},
	}}
	vec := &fakeVec{hits: []core.ScoredChunk{{
		Meta: core.ChunkMeta{
			FolderID:     folder.ID,
			SourceFileID: "sf-1",
			FileName:     "report.pdf",
			MimeType:     "application/pdf",
			ChunkIndex:   0,
			Text:         "revenue grew 12%",
		},
		Score: 0.91,
	}}}

	retriever := NewRetriever(vec, &fakeEmbedder{})
	return &orchFixture{
		db:      db,
		llm:     llm,
		fresher: fresher,
		orch:    NewOrchestrator(db, llm, retriever, fresher),
		folder:  folder,
	}
}

func TestSendMessage_FastPathHappyFlow(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)
	f.llm.deltas = []core.StreamDelta{
		{Text: "Revenue grew 12% "},
		{Text: "[Source: report.pdf]"},
		{Text: " last year."},
	}

	sink := &recordSink{}
	err := f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, "", "how did revenue do?", sink)
	require.NoError(t, err)

	require.NotEmpty(t, sink.conversationID)
	assert.True(t, sink.doneCalled)
	assert.Empty(t, sink.errs)
	assert.NotContains(t, sink.text(), "[Source:")

	require.Len(t, sink.doneCitations, 1)
	assert.Equal(t, "report.pdf", sink.doneCitations[0].FileName)
	assert.Nil(t, sink.doneCitations[0].ChunkIndex)

	// Both turns persisted, the assistant one scrubbed and cited.
	msgs, err := f.db.ListMessages(context.Background(), sink.conversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "how did revenue do?", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.NotContains(t, msgs[1].Content, "[Source:")
	assert.Len(t, msgs[1].Citations, 1)
	assert.Equal(t, sink.doneMessageID, msgs[1].ID)

	// The prompt carried native file references, not chunks.
	require.NotNil(t, f.llm.lastPrompt)
	assert.Len(t, f.llm.lastPrompt.Files, 1)
	assert.Empty(t, f.llm.lastPrompt.Chunks)
	assert.Equal(t, 1, f.fresher.calls)
}

func TestSendMessage_RagPathUsesChunks(t *testing.T) {
	f := newOrchFixture(t, models.ModeRag)
	f.llm.deltas = []core.StreamDelta{{Text: "It grew [Source: report.pdf]."}}

	sink := &recordSink{}
	err := f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, "", "growth?", sink)
	require.NoError(t, err)

	require.NotNil(t, f.llm.lastPrompt)
	assert.Empty(t, f.llm.lastPrompt.Files)
	require.Len(t, f.llm.lastPrompt.Chunks, 1)
	assert.Equal(t, "revenue grew 12%", f.llm.lastPrompt.Chunks[0].Text)
	assert.Zero(t, f.fresher.calls)

	require.Len(t, sink.doneCitations, 1)
	require.NotNil(t, sink.doneCitations[0].ChunkIndex)
	assert.Equal(t, 0, *sink.doneCitations[0].ChunkIndex)
}

func TestSendMessage_MidStreamErrorPersistsNothing(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)
	f.llm.deltas = []core.StreamDelta{
		{Text: "partial answer"},
		{Err: core.Transientf("stream", fmt.Errorf("connection reset"))},
	}

	sink := &recordSink{}
	err := f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, "", "q", sink)
	require.Error(t, err)

	assert.False(t, sink.doneCalled)
	require.Len(t, sink.errs, 1)

	// Only the user turn survives; the truncated answer is gone.
	msgs, merr := f.db.ListMessages(context.Background(), sink.conversationID)
	require.NoError(t, merr)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
}

func TestSendMessage_PersistFailureEndsStreamWithError(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)
	f.llm.deltas = []core.StreamDelta{{Text: "complete answer"}}
	f.db.failInsertFor = models.RoleAssistant

	sink := &recordSink{}
	err := f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, "", "q", sink)
	require.Error(t, err)

	// The client got the whole answer already; it still needs a terminal event.
	assert.False(t, sink.doneCalled)
	require.Len(t, sink.errs, 1)
}

func TestSendMessage_FolderNotReady(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)
	f.folder.Status = models.FolderIndexing
	require.NoError(t, f.db.CreateFolder(context.Background(), f.folder))

	err := f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, "", "q", &recordSink{})
	assert.ErrorIs(t, err, core.ErrFolderNotReady)
}

func TestSendMessage_OtherUsersFolderReadsAsMissing(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)

	err := f.orch.SendMessage(context.Background(), "intruder", f.folder.ID, "", "q", &recordSink{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSendMessage_ConcurrentSendRejected(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)

	conv := &models.Conversation{ID: "conv-1", UserID: "user-1", FolderID: f.folder.ID, Title: "t"}
	require.NoError(t, f.db.CreateConversation(context.Background(), conv))

	release := make(chan struct{})
	f.llm.deltas = nil
	slowLLM := &blockingLLM{release: release}
	f.orch.llm = slowLLM

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, conv.ID, "first", &recordSink{})
	}()

	// Wait until the first send holds the conversation.
	require.Eventually(t, func() bool {
		f.orch.mu.Lock()
		defer f.orch.mu.Unlock()
		return f.orch.inflight[conv.ID]
	}, time.Second, 5*time.Millisecond)

	err := f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, conv.ID, "second", &recordSink{})
	assert.ErrorIs(t, err, core.ErrConcurrentModification)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestSendMessage_ReusesConversationAndHistory(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)
	f.llm.deltas = []core.StreamDelta{{Text: "second answer"}}

	conv := &models.Conversation{ID: "conv-1", UserID: "user-1", FolderID: f.folder.ID, Title: "t"}
	require.NoError(t, f.db.CreateConversation(context.Background(), conv))
	require.NoError(t, f.db.InsertMessage(context.Background(), &models.Message{
		ID: "m1", ConversationID: conv.ID, Role: models.RoleUser, Content: "first question",
	}))
	require.NoError(t, f.db.InsertMessage(context.Background(), &models.Message{
		ID: "m2", ConversationID: conv.ID, Role: models.RoleAssistant, Content: "first answer",
	}))

	sink := &recordSink{}
	err := f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, conv.ID, "follow-up", sink)
	require.NoError(t, err)

	assert.Equal(t, conv.ID, sink.conversationID)
	require.NotNil(t, f.llm.lastPrompt)
	require.Len(t, f.llm.lastPrompt.History, 2)
	assert.Equal(t, "first question", f.llm.lastPrompt.History[0].Text)
	assert.Equal(t, "first answer", f.llm.lastPrompt.History[1].Text)
	assert.Equal(t, "follow-up", f.llm.lastPrompt.Question)
}

func TestSendMessage_NewConversationTitledFromQuestion(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)
	f.llm.deltas = []core.StreamDelta{{Text: "answer"}}

	long := "this question is deliberately much longer than fifty characters in total"
	sink := &recordSink{}
	require.NoError(t, f.orch.SendMessage(context.Background(), "user-1", f.folder.ID, "", long, sink))

	conv, err := f.db.GetConversationByID(context.Background(), sink.conversationID)
	require.NoError(t, err)
	assert.Len(t, []rune(conv.Title), titleMaxLen+3)
	assert.Equal(t, long[:titleMaxLen]+"...", conv.Title)
}

func TestSendMessage_CancelledRequestPersistsNoAnswer(t *testing.T) {
	f := newOrchFixture(t, models.ModeFast)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	f.orch.llm = &blockingLLM{release: release}

	done := make(chan error, 1)
	sink := &recordSink{}
	go func() {
		done <- f.orch.SendMessage(ctx, "user-1", f.folder.ID, "", "q", sink)
	}()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.conversationID != ""
	}, time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	assert.False(t, sink.doneCalled)
	msgs, merr := f.db.ListMessages(context.Background(), sink.conversationID)
	require.NoError(t, merr)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	close(release)
}

// blockingLLM streams nothing until released, to hold a send in flight.
type blockingLLM struct {
	release <-chan struct{}
}

func (l *blockingLLM) GenerateStream(ctx context.Context, _ *core.Prompt) (<-chan core.StreamDelta, error) {
	ch := make(chan core.StreamDelta)
	go func() {
		defer close(ch)
		select {
		case <-l.release:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
