package handlers

import (
	"github.com/gofiber/fiber/v2"

	"agent-arena/middleware"
	"agent-arena/services"
)

func SetupTournamentRoutes(
	app *fiber.App,
	tournamentService *services.TournamentService,
	entryService *services.EntryService,
	chatService *services.ChatService,
	settlementService *services.SettlementService,
) {
	// Public read routes
	app.Get("/modes", tournamentService.GetModes)
	app.Get("/tournaments", tournamentService.GetAllTournaments)
	app.Get("/tournaments/mini", tournamentService.GetAllTournamentsMini)
	app.Get("/tournaments/:id", tournamentService.GetTournamentByID)
	app.Get("/tournaments/:id/messages", chatService.GetMessages)

	// Routes that act on behalf of a wallet
	secured := app.Group("/", middleware.WalletContextMiddleware())
	secured.Post("/tournaments", tournamentService.CreateTournament)
	secured.Post("/tournaments/:id/enter", entryService.EnterTournament)
	secured.Post("/tournaments/:id/chat", chatService.SubmitInteraction)
	secured.Post("/tournaments/:id/settle", settlementService.SettleTournament)
}
