// container.go
package main

import (
	"context"

	"github.com/Abraxas-365/finai/pkg/ai/embedding"
	"github.com/Abraxas-365/finai/pkg/ai/llm"
	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx/memoryxinfra"
	aiopenai "github.com/Abraxas-365/finai/pkg/ai/providers/openai"
	"github.com/Abraxas-365/finai/pkg/assistant"
	"github.com/Abraxas-365/finai/pkg/assistant/assistantapi"
	"github.com/Abraxas-365/finai/pkg/assistant/assistantsrv"
	"github.com/Abraxas-365/finai/pkg/config"
	"github.com/Abraxas-365/finai/pkg/filing"
	"github.com/Abraxas-365/finai/pkg/filing/filinginfra"
	"github.com/Abraxas-365/finai/pkg/filing/filingsrv"
	"github.com/Abraxas-365/finai/pkg/fsx"
	"github.com/Abraxas-365/finai/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/finai/pkg/fsx/fsxs3"
	"github.com/Abraxas-365/finai/pkg/logx"
	"github.com/Abraxas-365/finai/pkg/market"
	"github.com/Abraxas-365/finai/pkg/market/marketinfra"
	"github.com/Abraxas-365/finai/pkg/observability"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/openai/openai-go/v3/option"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies
type Container struct {
	// Config
	Config *config.Config

	// Infrastructure
	DB         *sqlx.DB
	Redis      *redis.Client
	FileSystem fsx.FileSystem
	S3Client   *s3.Client
	Metrics    *observability.Metrics

	// AI
	ChatClient       *llm.Client
	ClassifierClient *llm.Client
	EmbeddingClient  *embedding.Client

	// Collaborators
	Market  market.Client
	Filings filing.ContextRetriever

	// Assistant
	Engine              *assistant.Engine
	ConversationService *assistantsrv.ConversationService

	// API Handlers
	AssistantHandlers *assistantapi.AssistantHandlers
}

// NewContainer initializes the dependency injection container
func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing dependency container...")

	c := &Container{
		Config:  cfg,
		Metrics: observability.NewMetrics("finai"),
	}

	c.initInfrastructure()
	c.initAI()
	c.initCollaborators()
	c.initAssistant()

	logx.Info("✅ Container initialized successfully")
	return c
}

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Database Connection (only when a store lives in Postgres)
	if c.Config.NeedsDatabase() {
		db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
		if err != nil {
			logx.Fatalf("Failed to connect to database: %v", err)
		}
		db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
		db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
		db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
		c.DB = db
		logx.Info("✅ Database connected")
	}

	// 2. Redis Connection
	if c.Config.NeedsRedis() {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Address(),
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
			logx.Fatalf("Failed to connect to Redis: %v (Redis is required for MEMORY_STORE=redis)", err)
		}
		logx.Info("✅ Redis connected")
	}

	// 3. File Storage Configuration (Local or S3)
	c.initFileStorage()

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initFileStorage() {
	storage := c.Config.Storage

	switch storage.Mode {
	case "s3":
		cfg, err := awsConfig.LoadDefaultConfig(context.TODO(), awsConfig.WithRegion(storage.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		c.S3Client = s3.NewFromConfig(cfg)
		c.FileSystem = fsxs3.NewS3FileSystem(c.S3Client, storage.S3Bucket, storage.S3Prefix)
		logx.Infof("✅ S3 file system configured (bucket: %s, region: %s)", storage.S3Bucket, storage.AWSRegion)

	default:
		localFS, err := fsxlocal.NewLocalFileSystem(storage.LocalDir)
		if err != nil {
			logx.Fatalf("Failed to initialize local file system: %v", err)
		}
		c.FileSystem = localFS
		logx.Infof("✅ Local file system configured (path: %s)", localFS.GetBasePath())
	}
}

func (c *Container) initAI() {
	logx.Info("🤖 Initializing language models...")
	cfg := c.Config

	chat := aiopenai.NewOpenAIProvider(cfg.LLM.APIKey,
		option.WithBaseURL(cfg.LLM.BaseURL),
		option.WithRequestTimeout(cfg.LLM.Timeout),
	)

	defaults := []llm.Option{
		llm.WithModel(cfg.LLM.Model),
		llm.WithTemperature(float32(cfg.LLM.Temperature)),
	}
	if cfg.LLM.MaxTokens > 0 {
		defaults = append(defaults, llm.WithMaxTokens(cfg.LLM.MaxTokens))
	}
	c.ChatClient = llm.NewClient(chat, defaults...)
	c.ClassifierClient = llm.NewClient(chat, llm.WithModel(cfg.LLM.ClassifierModel))

	embedder := aiopenai.NewOpenAIProvider(cfg.Embedding.APIKey,
		option.WithBaseURL(cfg.Embedding.BaseURL),
	)
	embeddingDefaults := []embedding.Option{embedding.WithModel(cfg.Embedding.Model)}
	if cfg.Embedding.Dimensions > 0 {
		embeddingDefaults = append(embeddingDefaults, embedding.WithDimensions(cfg.Embedding.Dimensions))
	}
	c.EmbeddingClient = embedding.NewClient(embedder, embeddingDefaults...)

	logx.Infof("✅ Chat model: %s (%s)", cfg.LLM.Model, cfg.LLM.BaseURL)
	logx.Infof("✅ Embedding model: %s", cfg.Embedding.Model)
}

func (c *Container) initCollaborators() {
	logx.Info("🗄️  Initializing market data and filing retrieval...")
	cfg := c.Config

	c.Market = marketinfra.NewAlpacaClient(marketinfra.AlpacaConfig{
		APIKey:     cfg.Market.APIKey,
		SecretKey:  cfg.Market.SecretKey,
		TradingURL: cfg.Market.TradingURL,
		DataURL:    cfg.Market.DataURL,
		Feed:       cfg.Market.Feed,
		Timeout:    cfg.Market.Timeout,
	})
	if cfg.Market.APIKey == "" {
		logx.Warn("⚠️  APCA_API_KEY is not set, account and price lookups will fail")
	}
	if cfg.Market.Paper {
		logx.Info("✅ Alpaca paper trading account")
	}

	source := filinginfra.NewSECAPIClient(filinginfra.SECAPIConfig{
		APIKey:   cfg.SEC.APIKey,
		BaseURL:  cfg.SEC.BaseURL,
		CacheTTL: cfg.SEC.CacheTTL,
		Timeout:  cfg.SEC.Timeout,
	})
	if cfg.SEC.APIKey == "" {
		logx.Warn("⚠️  SEC_API_KEY is not set, 10-K lookups will fail")
	}

	var store filing.VectorStore
	switch cfg.Retrieval.VectorStore {
	case "postgres":
		pg := filinginfra.NewPostgresVectorStore(c.DB)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			logx.Fatalf("Failed to prepare vector store: %v", err)
		}
		store = pg
		logx.Info("✅ Using pgvector store for filing chunks")
	default:
		store = filinginfra.NewMemoryVectorStore()
		logx.Warn("⚠️  Using in-memory vector store (filings are re-indexed after a restart)")
	}

	c.Filings = filingsrv.NewService(source, store, c.EmbeddingClient, c.ClassifierClient, c.FileSystem, filingsrv.Config{
		FormType:        filing.FormAnnualReport,
		ChunkSize:       cfg.Retrieval.ChunkSize,
		ChunkOverlap:    cfg.Retrieval.ChunkOverlap,
		TopK:            cfg.Retrieval.TopK,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		EmbedBatchSize:  cfg.Embedding.BatchSize,
		OptimizeQuery:   cfg.Retrieval.OptimizeQuery,
	})
}

func (c *Container) initAssistant() {
	logx.Info("💬 Initializing assistant...")
	cfg := c.Config

	resolver := assistant.NewResolver(c.Market, c.Filings, assistant.ResolverConfig{
		MaxTickers:        cfg.Assistant.MaxTickers,
		TickerConcurrency: cfg.Assistant.TickerConcurrency,
	}, c.Metrics)

	c.Engine = assistant.NewEngine(
		assistant.NewLLMClassifier(c.ClassifierClient, cfg.Assistant.TickerFallback),
		resolver,
		c.ChatClient,
		assistant.EngineConfig{TurnTimeout: cfg.Assistant.TurnTimeout, Metrics: c.Metrics},
	)

	c.ConversationService = assistantsrv.NewConversationService(c.Engine, c.memoryLog(), assistantsrv.Config{
		MaxHistory:      cfg.Memory.MaxHistory,
		IdleTimeout:     cfg.Memory.IdleTimeout,
		CleanupInterval: cfg.Memory.CleanupInterval,
	}, c.Metrics)

	c.AssistantHandlers = assistantapi.NewAssistantHandlers(c.ConversationService, cfg.Assistant.TurnTimeout)

	logx.Info("✅ Assistant initialized")
}

func (c *Container) memoryLog() memoryx.Log {
	switch c.Config.Memory.Store {
	case "redis":
		logx.Info("✅ Conversation history stored in Redis")
		return memoryxinfra.NewRedisLog(c.Redis, c.Config.Memory.RedisTTL)
	case "postgres":
		pg := memoryxinfra.NewPostgresLog(c.DB)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			logx.Fatalf("Failed to prepare conversation table: %v", err)
		}
		logx.Info("✅ Conversation history stored in Postgres")
		return pg
	default:
		fileLog, err := memoryxinfra.NewFileLog(c.Config.Memory.Dir)
		if err != nil {
			logx.Fatalf("Failed to initialize conversation directory: %v", err)
		}
		logx.Infof("✅ Conversation history stored in %s", c.Config.Memory.Dir)
		return fileLog
	}
}

// StartBackgroundServices starts background workers
func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")

	go c.ConversationService.StartJanitor(ctx)
	logx.Info("✅ Conversation janitor started")
}

// Cleanup saves open conversations and closes all connections
func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.ConversationService != nil {
		if err := c.ConversationService.Shutdown(context.Background()); err != nil {
			logx.Errorf("Error saving conversations: %v", err)
		} else {
			logx.Info("✅ Conversations saved")
		}
	}

	// Close database connection
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("✅ Database connection closed")
		}
	}

	// Close Redis connection
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup completed")
	_ = logx.Sync()
}
