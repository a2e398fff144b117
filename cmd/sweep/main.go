package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mutation-ner/cmd"
	"mutation-ner/internal/api"
	"mutation-ner/internal/corpus"
	"mutation-ner/internal/messaging"
	"mutation-ner/internal/storage"
	"mutation-ner/internal/sweep"
	"mutation-ner/internal/tracking"
	"mutation-ner/internal/trainer"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ort "github.com/yalue/onnxruntime_go"
	"gorm.io/gorm"
)

type Config struct {
	Root              string `env:"ROOT" envDefault:"./mutation-ner"`
	APIPort           string `env:"API_PORT" envDefault:"8001"`
	DatabaseURL       string `env:"DATABASE_URL" envDefault:""`
	RabbitMQURL       string `env:"RABBITMQ_URL" envDefault:""`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL" envDefault:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" envDefault:""`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	ModelBucketName   string `env:"MODEL_BUCKET_NAME" envDefault:"models"`
	ReportBucketName  string `env:"REPORT_BUCKET_NAME" envDefault:"reports"`
	TrainerURL        string `env:"TRAINER_URL,notEmpty,required"`
	TrackingURL       string `env:"TRACKING_URL,notEmpty,required"`
	APIKeyFile        string `env:"TRACKING_API_KEY_FILE" envDefault:"tracking.key"`
	SweepConfigPath   string `env:"SWEEP_CONFIG" envDefault:"sweep.yaml"`
	OnnxRuntimeDylib  string `env:"ONNX_RUNTIME_DYLIB"`
}

func createObjectStore(cfg Config) storage.ObjectStore {
	if cfg.S3EndpointURL == "" {
		store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
		if err != nil {
			log.Fatalf("Failed to create local object store: %v", err)
		}
		return store
	}

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Failed to create S3 object store: %v", err)
	}
	return store
}

func createQueue(rabbitMQURL string) (messaging.Publisher, messaging.Reciever) {
	if rabbitMQURL == "" {
		slog.Info("no rabbitmq url provided, using in memory queue")
		queue := messaging.NewInMemoryQueue()
		return queue, queue
	}

	publisher, err := messaging.NewRabbitMQPublisher(rabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ publisher: %v", err)
	}
	receiver, err := messaging.NewRabbitMQReceiver(rabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ receiver: %v", err)
	}
	return publisher, receiver
}

func createServer(db *gorm.DB, port string) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	sweepHandler := api.NewSweepService(db)

	r.Route("/api/v1", func(r chi.Router) {
		sweepHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
}

func main() {
	log.Println("Starting sweep agent...")

	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if cfg.OnnxRuntimeDylib == "" {
		log.Fatalf("ONNX_RUNTIME_DYLIB must be set")
	}
	ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}
	defer func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Fatalf("error destroying onnx env: %v", err)
		}
	}()

	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating root directory: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	f, err := os.OpenFile(filepath.Join(cfg.Root, "sweep.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(f, os.Stderr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := cmd.CreateDatabase(cfg.DatabaseURL, cfg.Root)

	objectStore := createObjectStore(cfg)
	for _, bucket := range []string{cfg.ModelBucketName, cfg.ReportBucketName} {
		if err := objectStore.CreateBucket(ctx, bucket); err != nil {
			log.Fatalf("Failed to create bucket %s: %v", bucket, err)
		}
	}

	apiKey, err := tracking.ReadAPIKey(cfg.APIKeyFile)
	if err != nil {
		log.Fatalf("Failed to read tracking api key: %v", err)
	}
	tracker := tracking.NewClient(cfg.TrackingURL, apiKey)
	if err := tracker.Login(ctx); err != nil {
		log.Fatalf("Failed to log in to tracking service: %v", err)
	}

	sweepCfg, err := sweep.LoadConfig(cfg.SweepConfigPath)
	if err != nil {
		log.Fatalf("Failed to load sweep config: %v", err)
	}

	slog.Info("building corpus pipeline", "train_source", sweepCfg.Corpus.TrainSource, "test_source", sweepCfg.Corpus.TestSource)

	loader := corpus.NewLoader(filepath.Join(cfg.Root, "corpus"))
	pipeline, err := sweep.BuildPipeline(ctx, loader, sweepCfg.Corpus, sweepCfg.MaxSeqLen)
	if err != nil {
		log.Fatalf("Failed to build corpus pipeline: %v", err)
	}

	remoteTrainer := trainer.NewRemoteTrainer(cfg.TrainerURL, objectStore, cfg.ModelBucketName, filepath.Join(cfg.Root, "models"))

	publisher, receiver := createQueue(cfg.RabbitMQURL)
	defer publisher.Close()
	defer receiver.Close()

	driver := sweep.NewDriver(remoteTrainer, tracker, db, objectStore, cfg.ReportBucketName, pipeline)
	agent := sweep.NewAgent(tracker, publisher, receiver, driver, db, sweepCfg)

	server := createServer(db, cfg.APIPort)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutdown signal received, stopping sweep")
		cancel()
	}()

	go func() {
		slog.Info("status server started", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
		}
	}()

	if err := agent.Run(ctx); err != nil {
		slog.Error("sweep terminated with error", "error", err)
	} else {
		slog.Info("sweep complete")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("sweep agent stopped")
}
