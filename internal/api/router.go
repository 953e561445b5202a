package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/matt-iam/iam-api/internal/api/handler"
	"github.com/matt-iam/iam-api/internal/api/middleware"
	"github.com/matt-iam/iam-api/internal/core/ports"
	"github.com/matt-iam/iam-api/internal/token"
)

// Deps bundles everything the router needs wired at startup.
type Deps struct {
	Mongo     *mongo.Database
	Redis     *redis.Client
	Codec     *token.Codec
	Auth      ports.AuthService
	Tokens    ports.TokenService
	Users     middleware.UserFinder
	Blacklist middleware.BlacklistChecker
	Log       zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("iam"))

	authHandler := handler.NewAuthHandler(deps.Auth, deps.Tokens)
	authMiddleware := middleware.Auth(deps.Codec, deps.Blacklist, deps.Users)

	// --- Auth routes ---
	e.POST("/register", authHandler.Register)
	e.POST("/login", authHandler.Login)
	e.POST("/refresh", authHandler.Refresh)
	e.POST("/logout", authHandler.Logout)

	// --- Protected routes ---
	helloHandler := handler.NewHelloHandler()
	e.GET("/hello", helloHandler.Hello, authMiddleware, middleware.RequirePermission("READ_PRIVILEGES"))

	// --- Observability (no auth required) ---
	e.GET("/metrics", echoprometheus.NewHandler())

	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Mongo, deps.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	return e
}
