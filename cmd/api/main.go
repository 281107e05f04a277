package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/structex/structex/internal/api"
	"github.com/structex/structex/internal/config"
	"github.com/structex/structex/internal/convert"
	"github.com/structex/structex/internal/jobs"
	"github.com/structex/structex/internal/llm"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/service"
	"github.com/structex/structex/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "structex-api",
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	projectRepo := repository.NewProjectRepository(db)
	fileRepo := repository.NewFileRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	preRepo := repository.NewPreprocessRepository(db)
	trialRepo := repository.NewTrialRepository(db)
	gtRepo := repository.NewGroundTruthRepository(db)
	evalRepo := repository.NewEvaluationRepository(db)

	// Initialize blob storage
	blobStore, err := storage.NewBlobStore(&storage.Config{
		Backend: cfg.Storage.Backend,
		Root:    cfg.Storage.Local.Root,
		S3: storage.S3Config{
			Endpoint:     cfg.Storage.S3.Endpoint,
			Region:       cfg.Storage.S3.Region,
			AccessKey:    cfg.Storage.S3.AccessKey,
			SecretKey:    cfg.Storage.S3.SecretKey,
			Bucket:       cfg.Storage.S3.Bucket,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		},
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	ctx := context.Background()
	if s3Store, ok := blobStore.(*storage.S3Store); ok {
		if err := s3Store.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Initialize LLM client and converter
	llmClient := llm.NewClient(&llm.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.RequestTimeout,
	})
	converter := convert.NewConverter(llmClient, &convert.ConverterConfig{
		VisionModel: cfg.LLM.VisionModel,
		PageTimeout: cfg.Preprocess.PDFTimeout,
		MaxRows:     cfg.Preprocess.MaxTableRows,
	}, appLogger)

	// Initialize services
	fileService := service.NewFileService(fileRepo, blobStore, appLogger)
	preService := service.NewPreprocessService(preRepo, docRepo, fileRepo, blobStore, converter, appLogger, &service.PreprocessOptions{
		Workers:          cfg.Preprocess.Workers,
		ProgressInterval: cfg.Preprocess.ProgressInterval,
		WatcherInterval:  cfg.Preprocess.WatcherInterval,
	})
	extractService := service.NewExtractService(trialRepo, docRepo, appLogger, &service.ExtractOptions{
		DefaultAPIKey:     cfg.LLM.APIKey,
		DefaultBaseURL:    cfg.LLM.BaseURL,
		RequestTimeout:    cfg.LLM.RequestTimeout,
		HeartbeatInterval: cfg.Extract.HeartbeatInterval,
		CancelInterval:    cfg.Extract.CancelInterval,
	})
	gtService := service.NewGroundTruthService(gtRepo, blobStore, appLogger)
	mapService := service.NewFieldMapService(gtRepo, trialRepo, gtService, appLogger)
	evalService := service.NewEvaluateService(trialRepo, gtRepo, evalRepo, docRepo, fileRepo, gtService, appLogger, &service.EvaluateConfig{
		Workers:        cfg.Evaluate.Workers,
		FuzzyThreshold: cfg.Evaluate.FuzzyThreshold,
		NumericTol:     cfg.Evaluate.NumericEpsilon,
	})

	// Start the job queue with the stall sweeper
	queue := jobs.NewQueue(appLogger, &jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
	})
	sweeper := service.NewSweeper(preRepo, trialRepo, appLogger, cfg.Jobs.StallAfter)
	queue.RegisterPeriodic("sweep-stalled", cfg.Jobs.SweepInterval, sweeper.Sweep)
	queue.OnFailure(func(job *jobs.Job, err error) {
		sweeper.HandleJobFailure(ctx, job.Name, err)
	})
	queue.Start(ctx)

	// Setup router
	router := api.SetupRouter(&api.Services{
		ProjectRepo:    projectRepo,
		FileRepo:       fileRepo,
		DocumentRepo:   docRepo,
		PreRepo:        preRepo,
		TrialRepo:      trialRepo,
		EvalRepo:       evalRepo,
		FileService:    fileService,
		PreService:     preService,
		ExtractService: extractService,
		GTService:      gtService,
		MapService:     mapService,
		EvalService:    evalService,
		Queue:          queue,
	}, &cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout; drain the queue first so in-flight
	// tasks can finalize their status rows
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	queue.Stop(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
