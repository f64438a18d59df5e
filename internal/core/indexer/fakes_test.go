package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

// fakeDB keeps everything in maps; just enough of core.DbClient for the
// indexer paths under test.
type fakeDB struct {
	mu       sync.Mutex
	folders  map[string]*models.Folder
	files    map[string][]models.SourceFile       // folderID -> files
	handles  map[string][]models.NativeFileHandle // folderID -> handles
	finished []finishCall
}

type finishCall struct {
	status     string
	indexMode  string
	embedModel string
	fileCount  int
	lastError  string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		folders: map[string]*models.Folder{},
		files:   map[string][]models.SourceFile{},
		handles: map[string][]models.NativeFileHandle{},
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

func (f *fakeDB) ListFoldersByUser(_ context.Context, userID string) ([]models.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Folder
	for _, folder := range f.folders {
		if folder.UserID == userID {
			out = append(out, *folder)
		}
	}
	return out, nil
}

func (f *fakeDB) ClaimFolderForIndexing(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, ok := f.folders[id]
	if !ok {
		return false, core.ErrNotFound
	}
	if folder.Status == models.FolderIndexing {
		return false, nil
	}
	folder.Status = models.FolderIndexing
	folder.LastError = ""
	return true, nil
}

func (f *fakeDB) FinishFolderIndexing(_ context.Context, id, status, indexMode, embedModel string, fileCount int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, ok := f.folders[id]
	if !ok {
		return core.ErrNotFound
	}
	folder.Status = status
	folder.IndexMode = indexMode
	folder.EmbedModel = embedModel
	folder.FileCount = fileCount
	folder.LastError = lastError
	f.finished = append(f.finished, finishCall{status, indexMode, embedModel, fileCount, lastError})
	return nil
}

func (f *fakeDB) FailStaleIndexing(_ context.Context, _ time.Duration, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, folder := range f.folders {
		if folder.Status == models.FolderIndexing {
			folder.Status = models.FolderFailed
			folder.LastError = reason
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) DeleteFolder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.folders, id)
	delete(f.files, id)
	delete(f.handles, id)
	return nil
}

func (f *fakeDB) ReplaceSourceFiles(_ context.Context, folderID string, files []models.SourceFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[folderID] = files
	return nil
}

func (f *fakeDB) ListSourceFiles(_ context.Context, folderID string) ([]models.SourceFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[folderID], nil
}

func (f *fakeDB) InsertNativeHandles(_ context.Context, handles []models.NativeFileHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range handles {
		folderID := f.folderForSource(h.SourceFileID)
		f.handles[folderID] = append(f.handles[folderID], h)
	}
	return nil
}

func (f *fakeDB) ListNativeHandles(_ context.Context, folderID string) ([]models.NativeFileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[folderID], nil
}

func (f *fakeDB) ReplaceNativeHandle(_ context.Context, handle *models.NativeFileHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for folderID, hs := range f.handles {
		for i, h := range hs {
			if h.ID == handle.ID {
				f.handles[folderID][i] = *handle
				return nil
			}
		}
	}
	return core.ErrNotFound
}

func (f *fakeDB) DeleteNativeHandles(_ context.Context, folderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, folderID)
	return nil
}

func (f *fakeDB) folderForSource(sourceFileID string) string {
	for folderID, files := range f.files {
		for _, sf := range files {
			if sf.ID == sourceFileID {
				return folderID
			}
		}
	}
	return ""
}

func (f *fakeDB) CreateConversation(context.Context, *models.Conversation) error { return nil }
func (f *fakeDB) GetConversationByID(context.Context, string) (*models.Conversation, error) {
	return nil, core.ErrNotFound
}
func (f *fakeDB) ListConversationsByFolder(context.Context, string) ([]models.Conversation, error) {
	return nil, nil
}
func (f *fakeDB) TouchConversation(context.Context, string) error        { return nil }
func (f *fakeDB) InsertMessage(context.Context, *models.Message) error   { return nil }
func (f *fakeDB) ListMessages(context.Context, string) ([]models.Message, error) { return nil, nil }
func (f *fakeDB) ListRecentMessages(context.Context, string, int) ([]models.Message, error) {
	return nil, nil
}
func (f *fakeDB) Close() error { return nil }

var _ core.DbClient = (*fakeDB)(nil)

type fakeVec struct {
	mu      sync.Mutex
	records map[string][]core.ChunkRecord // namespace -> records
	deleted []string
}

func newFakeVec() *fakeVec {
	return &fakeVec{records: map[string][]core.ChunkRecord{}}
}

func (v *fakeVec) Upsert(_ context.Context, namespace string, records []core.ChunkRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records[namespace] = append(v.records[namespace], records...)
	return nil
}

func (v *fakeVec) Query(_ context.Context, namespace string, _ []float32, k int) ([]core.ScoredChunk, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []core.ScoredChunk
	for i, r := range v.records[namespace] {
		if i == k {
			break
		}
		out = append(out, core.ScoredChunk{Meta: r.Meta, Score: 1.0 - float64(i)*0.01})
	}
	return out, nil
}

func (v *fakeVec) DeleteNamespace(_ context.Context, namespace string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.records, namespace)
	v.deleted = append(v.deleted, namespace)
	return nil
}

func (v *fakeVec) CountNamespace(_ context.Context, namespace string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.records[namespace]), nil
}

var _ core.VectorStore = (*fakeVec)(nil)

// fakeFiles counts uploads and deletions; failAfter makes the n+1-th upload
// fail permanently.
type fakeFiles struct {
	mu        sync.Mutex
	uploads   int
	deleted   []string
	failAfter int // -1 = never fail
}

func newFakeFiles() *fakeFiles { return &fakeFiles{failAfter: -1} }

func (s *fakeFiles) Upload(_ context.Context, name string, _ []byte, mimeType string) (*core.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter >= 0 && s.uploads >= s.failAfter {
		return nil, core.Permanentf("fake upload", fmt.Errorf("upload rejected"))
	}
	s.uploads++
	return &core.UploadedFile{
		Handle:    fmt.Sprintf("files/%s-%d", name, s.uploads),
		URI:       fmt.Sprintf("https://files.example/%s-%d", name, s.uploads),
		ExpiresAt: time.Now().Add(48 * time.Hour),
	}, nil
}

func (s *fakeFiles) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, handle)
	return nil
}

var _ core.NativeFileStore = (*fakeFiles)(nil)

// fakeSource serves canned files; entries in failDownloads error instead.
// Mime types listed in export are rewritten on download, like a Workspace
// export, and every download request is recorded.
type fakeSource struct {
	mu            sync.Mutex
	files         []core.RemoteFile
	content       map[string][]byte
	export        map[string]string // listed mime -> exported mime
	failDownloads map[string]bool
	listErr       error
	downloads     []core.RemoteFile
}

func (s *fakeSource) ListFiles(context.Context, string) ([]core.RemoteFile, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.files, nil
}

func (s *fakeSource) Download(_ context.Context, file core.RemoteFile) ([]byte, string, error) {
	s.mu.Lock()
	s.downloads = append(s.downloads, file)
	s.mu.Unlock()

	if s.failDownloads[file.ID] {
		return nil, "", core.Permanentf("fake download", fmt.Errorf("gone"))
	}
	data, ok := s.content[file.ID]
	if !ok {
		data = []byte("content of " + file.Name)
	}
	mime := file.MimeType
	if m, ok := s.export[file.MimeType]; ok {
		mime = m
	}
	return data, mime, nil
}

var _ core.SourceClient = (*fakeSource)(nil)

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
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*fakeEmbedder)(nil)

// fakeExtractor passes bytes through as text; mime types listed in failing
// return an unsupported-file error.
type fakeExtractor struct {
	failing map[string]bool
}

func (e *fakeExtractor) ExtractText(_ context.Context, data []byte, mimeType string) (string, error) {
	if e.failing[mimeType] {
		return "", core.ErrUnsupportedFile
	}
	return string(data), nil
}

var _ core.DocumentExtractor = (*fakeExtractor)(nil)

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newFakeArchive() *fakeArchive { return &fakeArchive{objects: map[string][]byte{}} }

func (a *fakeArchive) UploadFile(_ context.Context, key string, data []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	return nil
}

func (a *fakeArchive) GetFile(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (a *fakeArchive) DeleteFile(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	a.deleted = append(a.deleted, key)
	return nil
}

var _ core.ObjectClient = (*fakeArchive)(nil)
