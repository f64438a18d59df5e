package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

type fakeDB struct {
	mu            sync.Mutex
	folders       map[string]*models.Folder
	sourceFiles   map[string][]models.SourceFile
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message // conversationID -> ordered
	failInsertFor string                      // role whose insert errors
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		folders:       map[string]*models.Folder{},
		sourceFiles:   map[string][]models.SourceFile{},
		conversations: map[string]*models.Conversation{},
		messages:      map[string][]models.Message{},
	}
}

func (f *fakeDB) CreateFolder(_ context.Context, folder *models.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *folder
	f.folders[folder.ID] = &cp
	return nil
}

func (f *fakeDB) GetFolderByID(_ context.Context, id string) (*models.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, ok := f.folders[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *folder
	return &cp, nil
}

func (f *fakeDB) ListFoldersByUser(context.Context, string) ([]models.Folder, error) {
	return nil, nil
}
func (f *fakeDB) ClaimFolderForIndexing(context.Context, string) (bool, error) { return false, nil }
func (f *fakeDB) FinishFolderIndexing(_ context.Context, _, _, _, _ string, _ int, _ string) error {
	return nil
}
func (f *fakeDB) FailStaleIndexing(context.Context, time.Duration, string) (int64, error) {
	return 0, nil
}
func (f *fakeDB) DeleteFolder(context.Context, string) error { return nil }

func (f *fakeDB) ReplaceSourceFiles(_ context.Context, folderID string, files []models.SourceFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sourceFiles[folderID] = files
	return nil
}

func (f *fakeDB) ListSourceFiles(_ context.Context, folderID string) ([]models.SourceFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sourceFiles[folderID], nil
}

func (f *fakeDB) InsertNativeHandles(context.Context, []models.NativeFileHandle) error { return nil }
func (f *fakeDB) ListNativeHandles(context.Context, string) ([]models.NativeFileHandle, error) {
	return nil, nil
}
func (f *fakeDB) ReplaceNativeHandle(context.Context, *models.NativeFileHandle) error { return nil }
func (f *fakeDB) DeleteNativeHandles(context.Context, string) error                   { return nil }

func (f *fakeDB) CreateConversation(_ context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *conv
	f.conversations[conv.ID] = &cp
	return nil
}

func (f *fakeDB) GetConversationByID(_ context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (f *fakeDB) ListConversationsByFolder(_ context.Context, folderID string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, c := range f.conversations {
		if c.FolderID == folderID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDB) TouchConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[id]; ok {
		conv.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeDB) InsertMessage(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertFor != "" && msg.Role == f.failInsertFor {
		return errors.New("insert rejected")
	}
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], *msg)
	return nil
}

func (f *fakeDB) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[conversationID], nil
}

func (f *fakeDB) ListRecentMessages(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeDB) Close() error { return nil }

var _ core.DbClient = (*fakeDB)(nil)

type fakeVec struct {
	hits []core.ScoredChunk
	err  error
}

func (v *fakeVec) Upsert(context.Context, string, []core.ChunkRecord) error { return nil }
func (v *fakeVec) Query(_ context.Context, _ string, _ []float32, k int) ([]core.ScoredChunk, error) {
	if v.err != nil {
		return nil, v.err
	}
	if len(v.hits) > k {
		return v.hits[:k], nil
	}
	return v.hits, nil
}
func (v *fakeVec) DeleteNamespace(context.Context, string) error     { return nil }
func (v *fakeVec) CountNamespace(context.Context, string) (int, error) { return len(v.hits), nil }

var _ core.VectorStore = (*fakeVec)(nil)

type fakeEmbedder struct{ name string }

func (e *fakeEmbedder) ModelName() string {
	if e.name == "" {
		return "fake-embed"
	}
	return e.name
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*fakeEmbedder)(nil)

// fakeLLM replays a scripted sequence of deltas and records the prompt it
// was given.
type fakeLLM struct {
	deltas     []core.StreamDelta
	lastPrompt *core.Prompt
}

func (l *fakeLLM) GenerateStream(ctx context.Context, p *core.Prompt) (<-chan core.StreamDelta, error) {
	l.lastPrompt = p
	ch := make(chan core.StreamDelta)
	go func() {
		defer close(ch)
		for _, d := range l.deltas {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

var _ core.LLMProvider = (*fakeLLM)(nil)

type fakeFresher struct {
	files []core.NativeFile
	err   error
	calls int
}

func (f *fakeFresher) EnsureFreshHandles(context.Context, *models.Folder) ([]core.NativeFile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.files, nil
}

var _ HandleFresher = (*fakeFresher)(nil)

// recordSink captures every sink call in order.
type recordSink struct {
	mu             sync.Mutex
	conversationID string
	fragments      []string
	doneMessageID  string
	doneCitations  []models.Citation
	doneCalled     bool
	errs           []error
}

func (s *recordSink) Start(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = conversationID
}

func (s *recordSink) Fragment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments = append(s.fragments, text)
}

func (s *recordSink) Done(messageID string, citations []models.Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doneCalled = true
	s.doneMessageID = messageID
	s.doneCitations = citations
}

func (s *recordSink) Error(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out string
	for _, f := range s.fragments {
		out += f
	}
	return out
}

var _ StreamSink = (*recordSink)(nil)
