package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"agent-arena/handlers"
	"agent-arena/middleware"
	"agent-arena/models"
	"agent-arena/services"
	"agent-arena/utils"
	"agent-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB, chat payloads only
	})

	// Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-Wallet-Address",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Tournament{},
		&models.Participant{},
		&models.EntryTransaction{},
		&models.ChatMessage{},
		&models.TournamentWinner{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	reserveBps := int64(200) // 2% gas reserve
	if raw := os.Getenv("PRIZE_RESERVE_BPS"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 || parsed >= 10000 {
			log.Fatal("PRIZE_RESERVE_BPS must be an integer in [0, 10000)")
		}
		reserveBps = parsed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	judgeClient := services.NewJudgeClient()
	payoutClient := services.NewPayoutClient()

	var archiveClient *utils.ArchiveClient
	if os.Getenv("ARCHIVE_ENDPOINT") != "" {
		archiveClient, err = utils.NewArchiveClient(ctx)
		if err != nil {
			log.Fatal("failed to initialize transcript archive:", err)
		}
	} else {
		log.Println("ARCHIVE_ENDPOINT not set, transcript archiving disabled")
	}

	settlementService := services.NewSettlementService(db, judgeClient, payoutClient, archiveClient, reserveBps)
	tournamentService := services.NewTournamentService(db, payoutClient, judgeClient, reserveBps)
	entryService := services.NewEntryService(db, payoutClient)
	chatService := services.NewChatService(db, judgeClient, settlementService)

	sched, err := settlementService.StartLifecycleScheduler(ctx)
	if err != nil {
		log.Fatal("failed to start lifecycle scheduler:", err)
	}

	if os.Getenv("SETTLEMENT_WEBHOOK_URL") != "" {
		notifyClient := workers.NewNotifyClient(db)
		go workers.PollSettlements(ctx, notifyClient, 15*time.Second)
		log.Println("Settlement notification polling running (every 15s)")
	} else {
		log.Println("SETTLEMENT_WEBHOOK_URL not set, settlement notifications disabled")
	}

	handlers.SetupTournamentRoutes(app, tournamentService, entryService, chatService, settlementService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server running on http://localhost:%s", port)
	log.Println("Lifecycle scheduler running (every 1m)")
	log.Println("GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
