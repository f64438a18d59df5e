package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/alihussainiF1/talk2folder/internal/api/handlers"
	appMiddleware "github.com/alihussainiF1/talk2folder/internal/api/middlewares"
	"github.com/alihussainiF1/talk2folder/internal/config"
	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/core/chat"
	"github.com/alihussainiF1/talk2folder/internal/core/indexer"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, idx *indexer.FolderIndexer, orch *chat.Orchestrator, archive core.ObjectClient) *Server {
	folderHandler := handlers.NewFolderHandler(db, idx, archive)
	chatHandler := handlers.NewChatHandler(db, orch)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Generous request timeout; answers stream for a while.
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTAuth(cfg.JWTSecret))

			protected.Post("/folders", folderHandler.CreateFolder)
			protected.Get("/folders", folderHandler.ListFolders)
			protected.Get("/folders/{folderID}", folderHandler.GetFolder)
			protected.Post("/folders/{folderID}/reindex", folderHandler.ReindexFolder)
			protected.Delete("/folders/{folderID}", folderHandler.DeleteFolder)

			protected.Post("/chat/send", chatHandler.SendMessage)
			protected.Get("/chat/conversations", chatHandler.ListConversations)
			protected.Get("/chat/conversations/{conversationID}", chatHandler.GetConversation)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
