package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// CustomerContext resolves the calling customer from the X-Customer-ID header
// and stores it in request locals. Authentication proper is handled upstream
// by the API gateway; this middleware only carries the identity through.
func CustomerContext() fiber.Handler {
	return func(c fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get("X-Customer-ID"))
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Customer ID header is required",
				"error": fiber.Map{
					"code": "MISSING_CUSTOMER_ID",
				},
			})
		}

		customerID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || customerID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Customer ID header is malformed",
				"error": fiber.Map{
					"code": "INVALID_CUSTOMER_ID",
				},
			})
		}

		c.Locals("customer_id", uint(customerID))
		return c.Next()
	}
}
