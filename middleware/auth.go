package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// WalletContextMiddleware extracts the caller's wallet address set by the
// Gateway after signature verification. Mutating routes require it; read
// routes pass through without one.
func WalletContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		wallet := strings.ToLower(c.Get("X-Wallet-Address"))

		if c.Method() != fiber.MethodGet && wallet == "" {
			log.Printf("[WALLET_CTX] X-Wallet-Address required but missing on %s %s", c.Method(), c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Wallet-Address — request must come through gateway with a verified signature",
			})
		}

		c.Locals("wallet_address", wallet)
		return c.Next()
	}
}
