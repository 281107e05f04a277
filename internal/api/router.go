package api

import (
	"github.com/gin-gonic/gin"
	"github.com/structex/structex/internal/api/handler"
	"github.com/structex/structex/internal/api/middleware"
	"github.com/structex/structex/internal/config"
	"github.com/structex/structex/internal/jobs"
	"github.com/structex/structex/internal/repository"
	"github.com/structex/structex/internal/service"
)

// Services bundles the service and repository instances the router needs.
type Services struct {
	ProjectRepo    *repository.ProjectRepository
	FileRepo       *repository.FileRepository
	DocumentRepo   *repository.DocumentRepository
	PreRepo        *repository.PreprocessRepository
	TrialRepo      *repository.TrialRepository
	EvalRepo       *repository.EvaluationRepository
	FileService    *service.FileService
	PreService     *service.PreprocessService
	ExtractService *service.ExtractService
	GTService      *service.GroundTruthService
	MapService     *service.FieldMapService
	EvalService    *service.EvaluateService
	Queue          *jobs.Queue
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg *config.ServerConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	projectHandler := handler.NewProjectHandler(svc.ProjectRepo)
	fileHandler := handler.NewFileHandler(svc.FileService, svc.FileRepo)
	documentHandler := handler.NewDocumentHandler(svc.DocumentRepo)
	preHandler := handler.NewPreprocessHandler(svc.PreService, svc.PreRepo, svc.Queue)
	schemaHandler := handler.NewSchemaHandler(svc.TrialRepo)
	trialHandler := handler.NewTrialHandler(svc.ExtractService, svc.TrialRepo, svc.Queue)
	gtHandler := handler.NewGroundTruthHandler(svc.GTService, svc.MapService)
	evalHandler := handler.NewEvaluationHandler(svc.EvalService, svc.EvalRepo)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Projects
		v1.POST("/projects", projectHandler.CreateProject)
		v1.GET("/projects", projectHandler.ListProjects)
		v1.GET("/projects/:id", projectHandler.GetProject)
		v1.DELETE("/projects/:id", projectHandler.DeleteProject)

		// Files
		v1.POST("/projects/:id/files", fileHandler.UploadFile)
		v1.GET("/projects/:id/files", fileHandler.ListFiles)
		v1.GET("/files/:id/content", fileHandler.GetFileContent)
		v1.DELETE("/files/:id", fileHandler.DeleteFile)

		// Documents
		v1.GET("/projects/:id/documents", documentHandler.ListDocuments)
		v1.GET("/documents/:id", documentHandler.GetDocument)
		v1.DELETE("/documents/:id", documentHandler.DeleteDocument)

		// Preprocessing
		v1.POST("/projects/:id/preprocessing/configs", preHandler.CreateConfig)
		v1.GET("/projects/:id/preprocessing/configs", preHandler.ListConfigs)
		v1.POST("/projects/:id/preprocessing/tasks", preHandler.CreateTask)
		v1.GET("/projects/:id/preprocessing/tasks", preHandler.ListTasks)
		v1.GET("/preprocessing/tasks/:id", preHandler.GetTask)
		v1.POST("/preprocessing/tasks/:id/cancel", preHandler.CancelTask)

		// Schemas and prompts
		v1.POST("/projects/:id/schemas", schemaHandler.CreateSchema)
		v1.GET("/schemas/:id", schemaHandler.GetSchema)
		v1.POST("/projects/:id/prompts", schemaHandler.CreatePrompt)
		v1.GET("/prompts/:id", schemaHandler.GetPrompt)

		// Trials
		v1.POST("/projects/:id/trials", trialHandler.CreateTrial)
		v1.GET("/projects/:id/trials", trialHandler.ListTrials)
		v1.GET("/trials/:id", trialHandler.GetTrial)
		v1.POST("/trials/:id/cancel", trialHandler.CancelTrial)
		v1.GET("/trials/:id/results", trialHandler.ListTrialResults)

		// Ground truths and mappings
		v1.POST("/projects/:id/ground-truths", gtHandler.UploadGroundTruth)
		v1.GET("/projects/:id/ground-truths", gtHandler.ListGroundTruths)
		v1.GET("/ground-truths/:id", gtHandler.GetGroundTruth)
		v1.DELETE("/ground-truths/:id", gtHandler.DeleteGroundTruth)
		v1.POST("/ground-truths/:id/automap", gtHandler.AutoMap)
		v1.GET("/ground-truths/:id/mappings", gtHandler.ListMappings)
		v1.PUT("/ground-truths/:id/mappings", gtHandler.SaveMapping)
		v1.DELETE("/mappings/:id", gtHandler.DeleteMapping)

		// Evaluations
		v1.POST("/evaluations", evalHandler.RunEvaluation)
		v1.GET("/evaluations/:id", evalHandler.GetEvaluation)
		v1.GET("/evaluations/:id/metrics", evalHandler.ListEvaluationMetrics)
		v1.GET("/projects/:id/evaluations", evalHandler.ListEvaluations)
	}

	return r
}
