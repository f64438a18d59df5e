package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	middleware "github.com/alihussainiF1/talk2folder/internal/api/middlewares"
	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/core/indexer"
	objectclient "github.com/alihussainiF1/talk2folder/internal/core/object-client"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

type FolderHandler struct {
	dbclient core.DbClient
	indexer  *indexer.FolderIndexer
	archive  core.ObjectClient
}

func NewFolderHandler(dbclient core.DbClient, idx *indexer.FolderIndexer, archive core.ObjectClient) *FolderHandler {
	return &FolderHandler{dbclient: dbclient, indexer: idx, archive: archive}
}

type CreateFolderRequest struct {
	DriveFolderID string `json:"drive_folder_id"`
	Name          string `json:"name"`
}

// CreateFolder links a remote drive folder and kicks off indexing.
func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.DriveFolderID == "" {
		http.Error(w, "drive_folder_id is required", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = req.DriveFolderID
	}

	folder := &models.Folder{
		ID:            uuid.NewString(),
		UserID:        userID,
		DriveFolderID: req.DriveFolderID,
		Name:          req.Name,
		Status:        models.FolderPending,
	}
	if err := h.dbclient.CreateFolder(r.Context(), folder); err != nil {
		log.Printf("create folder failed: %v", err)
		http.Error(w, "failed to create folder", http.StatusInternalServerError)
		return
	}

	if err := h.indexer.Begin(r.Context(), folder.ID); err != nil {
		log.Printf("begin indexing %s: %v", folder.ID, err)
		http.Error(w, "failed to schedule indexing", http.StatusInternalServerError)
		return
	}
	folder.Status = models.FolderIndexing

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(folder)
}

func (h *FolderHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	folders, err := h.dbclient.ListFoldersByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(folders)
}

// GetFolder returns one folder with its indexing status.
func (h *FolderHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folder, ok := h.ownedFolder(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(folder)
}

// ReindexFolder rebuilds a folder's index. Rejected with 409 while an
// indexing run is already in flight.
func (h *FolderHandler) ReindexFolder(w http.ResponseWriter, r *http.Request) {
	folder, ok := h.ownedFolder(w, r)
	if !ok {
		return
	}

	if err := h.indexer.Begin(r.Context(), folder.ID); err != nil {
		if errors.Is(err, core.ErrConcurrentModification) {
			http.Error(w, "indexing already in progress", http.StatusConflict)
			return
		}
		log.Printf("reindex %s: %v", folder.ID, err)
		http.Error(w, "failed to schedule indexing", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// DeleteFolder removes the folder and everything derived from it: chunks,
// provider uploads, archived bytes, conversations.
func (h *FolderHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	folder, ok := h.ownedFolder(w, r)
	if !ok {
		return
	}

	if err := h.indexer.ResetFolderIndex(r.Context(), folder.ID); err != nil {
		log.Printf("reset index for %s: %v", folder.ID, err)
		http.Error(w, "failed to delete folder index", http.StatusInternalServerError)
		return
	}

	sources, err := h.dbclient.ListSourceFiles(r.Context(), folder.ID)
	if err == nil {
		for _, sf := range sources {
			key := objectclient.ArchiveKey(folder.ID, sf.ID)
			if err := h.archive.DeleteFile(r.Context(), key); err != nil {
				log.Printf("delete archived object %s: %v", key, err)
			}
		}
	}

	if err := h.dbclient.DeleteFolder(r.Context(), folder.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedFolder loads the folder from the URL and enforces ownership. Folders
// of other users read as not found.
func (h *FolderHandler) ownedFolder(w http.ResponseWriter, r *http.Request) (*models.Folder, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	folderID := chi.URLParam(r, "folderID")
	folder, err := h.dbclient.GetFolderByID(r.Context(), folderID)
	if err != nil {
		http.Error(w, "folder not found", http.StatusNotFound)
		return nil, false
	}
	if folder.UserID != userID {
		http.Error(w, "folder not found", http.StatusNotFound)
		return nil, false
	}
	return folder, true
}
