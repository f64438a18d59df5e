package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alihussainiF1/talk2folder/internal/config"
	"github.com/alihussainiF1/talk2folder/internal/core/chat"
	db "github.com/alihussainiF1/talk2folder/internal/core/database"
	"github.com/alihussainiF1/talk2folder/internal/core/drive"
	"github.com/alihussainiF1/talk2folder/internal/core/indexer"
	"github.com/alihussainiF1/talk2folder/internal/core/llm"
	objectclient "github.com/alihussainiF1/talk2folder/internal/core/object-client"
	"github.com/alihussainiF1/talk2folder/internal/core/vectorstore"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Indexer      *indexer.FolderIndexer
	Orchestrator *chat.Orchestrator
	Server       *Server

	embedder  *llm.GeminiEmbedder
	llm       *llm.GeminiLLM
	fileStore *llm.GeminiFileStore
	cfg       *config.Config
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	vecStore := vectorstore.NewPgvectorStore(dbClient.DB())

	driveClient, err := drive.NewClient(appCtx, cfg.GoogleCredsPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the drive client, %w", err)
	}

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	fileStore, err := llm.NewGeminiFileStore(appCtx, cfg.AIAPIKey)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the file store, %w", err)
	}

	documentExtractor := indexer.NewDocconvExtractor(false)

	folderIndexer := indexer.NewFolderIndexer(
		dbClient, vecStore, fileStore, driveClient,
		geminiEmbedder, documentExtractor, objClient,
		indexer.DefaultIndexConfig(),
	)

	retriever := chat.NewRetriever(vecStore, geminiEmbedder)
	orchestrator := chat.NewOrchestrator(dbClient, llmProvider, retriever, folderIndexer)

	server := NewServer(cfg, dbClient, folderIndexer, orchestrator, objClient)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Indexer:      folderIndexer,
		Orchestrator: orchestrator,
		Server:       server,
		embedder:     geminiEmbedder,
		llm:          llmProvider,
		fileStore:    fileStore,
		cfg:          cfg,
	}, nil
}

// Start launches the indexing workers and the HTTP server.
func (a *App) Start(ctx context.Context) {
	a.Indexer.Start(ctx, a.cfg.IndexWorkers)
	go a.Server.Start()
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.fileStore != nil {
		_ = a.fileStore.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
