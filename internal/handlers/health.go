package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// HealthCheck reports whether both databases answer a ping.
func HealthCheck(db *gorm.DB, mongoClient *mongo.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok", "mongo": "ok"}
		status := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["postgres"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
		if mongoClient != nil {
			if err := mongoClient.Ping(ctx, nil); err != nil {
				checks["mongo"] = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "degraded"
		}
		return c.JSON(status, echo.Map{
			"status":  state,
			"service": "socio-api",
			"checks":  checks,
		})
	}
}
