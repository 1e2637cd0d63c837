package main

import (
  "context"
  "fmt"
  "os"
  "os/signal"
  "syscall"
  "time"

  "github.com/yungbote/roomscore-backend/internal/clients/attendance"
  "github.com/yungbote/roomscore-backend/internal/clients/cms"
  "github.com/yungbote/roomscore-backend/internal/clients/xapistore"
  "github.com/yungbote/roomscore-backend/internal/db"
  "github.com/yungbote/roomscore-backend/internal/handlers"
  "github.com/yungbote/roomscore-backend/internal/logger"
  "github.com/yungbote/roomscore-backend/internal/observability"
  "github.com/yungbote/roomscore-backend/internal/repos"
  "github.com/yungbote/roomscore-backend/internal/scoring"
  "github.com/yungbote/roomscore-backend/internal/server"
  "github.com/yungbote/roomscore-backend/internal/services"
  "github.com/yungbote/roomscore-backend/internal/stream"
  "github.com/yungbote/roomscore-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  // Tracing
  otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
    ServiceName: "roomscore",
    Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
    Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
  })
  if otelShutdown != nil {
    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
      defer cancel()
      _ = otelShutdown(shutdownCtx)
    }()
  }

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Fatal("Postgres init failed", "error", err)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Fatal("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  roomRepo := repos.NewRoomRepo(thePG, log)
  scoreRepo := repos.NewUserContentScoreRepo(thePG, log)
  answerRepo := repos.NewAnswerRepo(thePG, log)
  rawAnswerRepo := repos.NewRawAnswerRepo(thePG, log)

  // Provider clients
  log.Info("Setting up provider clients from main...")
  attendanceClient, err := attendance.NewFromEnv(log)
  if err != nil {
    log.Fatal("Attendance client init failed", "error", err)
  }
  cmsClient, err := cms.NewFromEnv(log)
  if err != nil {
    log.Fatal("CMS client init failed", "error", err)
  }
  eventsClient, err := xapistore.NewFromEnv(log)
  if err != nil {
    log.Fatal("xAPI store client init failed", "error", err)
  }

  // Stream
  streamClient, err := stream.NewClient(log)
  if err != nil {
    log.Fatal("Redis stream init failed", "error", err)
  }
  defer streamClient.Close()

  // Services
  log.Info("Setting up Services from main...")
  schemeCache := scoring.NewKeySchemeCache(log)
  scoreService := services.NewScoreService(thePG, log, attendanceClient, cmsClient, eventsClient, roomRepo, scoreRepo, answerRepo, schemeCache)
  ingestService := services.NewIngestService(thePG, log, streamClient, rawAnswerRepo, roomRepo, scoreService)

  // Stream consumer
  batchSize := utils.GetEnvAsInt("XAPI_BATCH_SIZE", 100, log)
  go runConsumer(ctx, log, streamClient, ingestService, int64(batchSize))

  // HTTP
  scoresHandler := handlers.NewScoresHandler(scoreService)
  router := server.NewRouter(server.RouterConfig{ScoresHandler: scoresHandler})
  port := utils.GetEnv("PORT", "8080", log)
  log.Info("Starting http server...", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Fatal("HTTP server exited", "error", err)
  }
}

func runConsumer(ctx context.Context, log *logger.Logger, client stream.Client, ingest services.IngestService, batchSize int64) {
  log.Info("Starting telemetry stream consumer...")
  for {
    if ctx.Err() != nil {
      log.Info("Stream consumer stopping")
      return
    }
    msgs, err := client.Read(ctx, batchSize, 5*time.Second)
    if err != nil {
      if ctx.Err() != nil {
        return
      }
      log.Error("Stream read failed", "error", err)
      time.Sleep(time.Second)
      continue
    }
    if len(msgs) == 0 {
      continue
    }
    if _, err := ingest.ProcessBatch(ctx, msgs); err != nil {
      log.Error("Batch processing failed", "error", err)
    }
  }
}
