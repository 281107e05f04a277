package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/structex/structex/internal/config"
	"github.com/structex/structex/internal/convert"
	"github.com/structex/structex/internal/llm"
	"github.com/structex/structex/internal/logger"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/service"
	"github.com/structex/structex/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "structex-batch",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	mode := flag.String("mode", "", "What to run: preprocess, extract or evaluate")
	taskID := flag.String("task", "", "Preprocessing task ID (mode=preprocess)")
	trialID := flag.String("trial", "", "Trial ID (mode=extract or mode=evaluate)")
	groundTruthID := flag.String("ground-truth", "", "Ground truth ID (mode=evaluate)")
	force := flag.Bool("force", false, "Recompute an evaluation even if one is stored")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
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

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	switch *mode {
	case "preprocess":
		if *taskID == "" {
			appLogger.Fatal("-task is required for mode=preprocess")
		}
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
		preService := service.NewPreprocessService(preRepo, docRepo, fileRepo, blobStore, converter, appLogger, &service.PreprocessOptions{
			Workers:          cfg.Preprocess.Workers,
			ProgressInterval: cfg.Preprocess.ProgressInterval,
			WatcherInterval:  cfg.Preprocess.WatcherInterval,
		})
		if err := preService.Run(ctx, *taskID); err != nil {
			appLogger.WithError(err).Fatal("Preprocessing run failed")
		}
		appLogger.WithField(logger.FieldTaskID, *taskID).Info("Preprocessing run finished")

	case "extract":
		if *trialID == "" {
			appLogger.Fatal("-trial is required for mode=extract")
		}
		extractService := service.NewExtractService(trialRepo, docRepo, appLogger, &service.ExtractOptions{
			DefaultAPIKey:     cfg.LLM.APIKey,
			DefaultBaseURL:    cfg.LLM.BaseURL,
			RequestTimeout:    cfg.LLM.RequestTimeout,
			HeartbeatInterval: cfg.Extract.HeartbeatInterval,
			CancelInterval:    cfg.Extract.CancelInterval,
		})
		if err := extractService.Run(ctx, *trialID); err != nil {
			appLogger.WithError(err).Fatal("Extraction run failed")
		}
		appLogger.WithField(logger.FieldTrialID, *trialID).Info("Extraction run finished")

	case "evaluate":
		if *trialID == "" || *groundTruthID == "" {
			appLogger.Fatal("-trial and -ground-truth are required for mode=evaluate")
		}
		gtService := service.NewGroundTruthService(gtRepo, blobStore, appLogger)
		evalService := service.NewEvaluateService(trialRepo, gtRepo, evalRepo, docRepo, fileRepo, gtService, appLogger, &service.EvaluateConfig{
			Workers:        cfg.Evaluate.Workers,
			FuzzyThreshold: cfg.Evaluate.FuzzyThreshold,
			NumericTol:     cfg.Evaluate.NumericEpsilon,
		})
		eval, err := evalService.Run(ctx, *trialID, *groundTruthID, *force)
		if err != nil {
			appLogger.WithError(err).Fatal("Evaluation failed")
		}
		appLogger.WithFields(logger.Fields{
			"evaluation_id": eval.ID,
			"matched":       eval.MatchedDocuments,
			"total":         eval.TotalDocuments,
		}).Info("Evaluation finished")

	default:
		appLogger.WithField("mode", *mode).Fatal("Unknown mode, want preprocess, extract or evaluate")
	}
}
