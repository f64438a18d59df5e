package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

const systemPrompt = "You are a helpful assistant that answers questions about the user's documents. " +
	"Base your answers only on the provided documents. " +
	"When you use information from a document, cite it inline as [Source: filename] using the exact file name. " +
	"If the documents do not contain the answer, say so."

// StreamSink receives the answer as it is generated. Implemented by the SSE
// transport; tests substitute their own.
type StreamSink interface {
	Start(conversationID string)
	Fragment(text string)
	Done(messageID string, citations []models.Citation)
	Error(err error)
}

// HandleFresher supplies prompt-ready native file references, re-uploading
// expired ones. Implemented by the folder indexer.
type HandleFresher interface {
	EnsureFreshHandles(ctx context.Context, folder *models.Folder) ([]core.NativeFile, error)
}

// Orchestrator runs one question end to end: resolve the folder's index
// mode, build the prompt, stream the answer, persist the exchange.
type Orchestrator struct {
	db        core.DbClient
	llm       core.LLMProvider
	retriever *Retriever
	fresher   HandleFresher

	mu       sync.Mutex
	inflight map[string]bool
}

func NewOrchestrator(db core.DbClient, llm core.LLMProvider, retriever *Retriever, fresher HandleFresher) *Orchestrator {
	return &Orchestrator{
		db:        db,
		llm:       llm,
		retriever: retriever,
		fresher:   fresher,
		inflight:  map[string]bool{},
	}
}

// SendMessage answers one question against a folder, streaming fragments to
// sink. Terminal outcomes go through exactly one of sink.Done or sink.Error.
// A second send on the same conversation while one is streaming is rejected
// with core.ErrConcurrentModification before any state changes.
func (o *Orchestrator) SendMessage(ctx context.Context, userID, folderID, conversationID, question string, sink StreamSink) error {
	folder, err := o.db.GetFolderByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.UserID != userID {
		return core.ErrNotFound
	}
	if folder.Status != models.FolderReady {
		return core.ErrFolderNotReady
	}

	conv, err := o.ensureConversation(ctx, userID, folder, conversationID, question)
	if err != nil {
		return err
	}

	if !o.acquire(conv.ID) {
		return core.ErrConcurrentModification
	}
	defer o.release(conv.ID)

	// History is captured before the new question lands so the prompt does
	// not repeat it.
	history, err := o.historyTurns(ctx, conv.ID)
	if err != nil {
		return err
	}

	prompt, candidates, err := o.buildPrompt(ctx, folder, history, question)
	if err != nil {
		return err
	}

	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        question,
	}
	if err := o.db.InsertMessage(ctx, userMsg); err != nil {
		return err
	}

	deltas, err := o.llm.GenerateStream(ctx, prompt)
	if err != nil {
		sink.Error(err)
		return err
	}

	sink.Start(conv.ID)

	var (
		raw    string
		filter markerFilter
	)
	for d := range deltas {
		if d.Err != nil {
			// Mid-stream failure: nothing is persisted, the client retries.
			sink.Error(d.Err)
			return d.Err
		}
		raw += d.Text
		if out := filter.Feed(d.Text); out != "" {
			sink.Fragment(out)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if out := filter.Flush(); out != "" {
		sink.Fragment(out)
	}

	clean, citations := ResolveCitations(raw, candidates)

	assistantMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        clean,
		Citations:      citations,
	}
	// The stream already reached the client, so a persistence failure still
	// has to close it with a terminal event.
	if err := o.db.InsertMessage(ctx, assistantMsg); err != nil {
		sink.Error(err)
		return err
	}
	if err := o.db.TouchConversation(ctx, conv.ID); err != nil {
		sink.Error(err)
		return err
	}

	sink.Done(assistantMsg.ID, citations)
	return nil
}

// buildPrompt assembles the mode-appropriate prompt plus the citation
// candidates the model is allowed to reference.
func (o *Orchestrator) buildPrompt(ctx context.Context, folder *models.Folder, history []core.PromptTurn, question string) (*core.Prompt, []Candidate, error) {
	p := &core.Prompt{
		System:   systemPrompt,
		History:  history,
		Question: question,
	}

	switch folder.IndexMode {
	case models.ModeFast:
		files, err := o.fresher.EnsureFreshHandles(ctx, folder)
		if err != nil {
			return nil, nil, fmt.Errorf("refresh native files: %w", err)
		}
		sources, err := o.db.ListSourceFiles(ctx, folder.ID)
		if err != nil {
			return nil, nil, err
		}
		candidates := make([]Candidate, 0, len(sources))
		for _, sf := range sources {
			candidates = append(candidates, Candidate{
				FileName:     sf.Name,
				SourceFileID: sf.ID,
				MimeType:     sf.MimeType,
			})
		}
		p.Files = files
		return p, candidates, nil

	case models.ModeRag:
		chunks, err := o.retriever.Retrieve(ctx, folder, question)
		if err != nil {
			return nil, nil, err
		}
		candidates := make([]Candidate, 0, len(chunks))
		for _, ch := range chunks {
			idx := ch.ChunkIndex
			candidates = append(candidates, Candidate{
				FileName:     ch.FileName,
				SourceFileID: ch.SourceFileID,
				MimeType:     ch.MimeType,
				ChunkIndex:   &idx,
			})
		}
		p.Chunks = chunks
		return p, candidates, nil
	}
	return nil, nil, fmt.Errorf("folder %s has no index mode", folder.ID)
}

func (o *Orchestrator) acquire(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[conversationID] {
		return false
	}
	o.inflight[conversationID] = true
	return true
}

func (o *Orchestrator) release(conversationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, conversationID)
}
