package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/unifiedinbox/mailsync/api/handlers"
	"github.com/unifiedinbox/mailsync/api/middleware"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/repository"
	"github.com/unifiedinbox/mailsync/internal/tracing"
	"github.com/unifiedinbox/mailsync/services/auth"
)

// Dependencies bundles everything the route handlers need.
type Dependencies struct {
	Repositories *repository.Repositories
	Providers    map[enum.EmailProvider]interfaces.EmailProviderService
	Credentials  interfaces.CredentialManager
	Scheduler    interfaces.SyncScheduler
	States       *auth.StateStore
	Cipher       interfaces.TokenCipher
	APIKey       string
	Log          logger.Logger
}

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, deps *Dependencies) {
	if deps == nil || deps.Repositories == nil {
		panic("API dependencies cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	oauthHandler := handlers.NewOAuthHandler(deps.Providers, deps.States, deps.Repositories.AccountRepository, deps.Cipher, deps.Scheduler, deps.Log)
	accountsHandler := handlers.NewAccountsHandler(deps.Repositories.AccountRepository, deps.Repositories.ThreadRepository, deps.Scheduler, deps.Log)
	threadsHandler := handlers.NewThreadsHandler(deps.Repositories.ThreadRepository, deps.Repositories.MessageRepository)
	emailsHandler := handlers.NewEmailsHandler(deps.Repositories.AccountRepository, deps.Repositories.MessageRepository, deps.Providers, deps.Credentials)

	r.GET("/health", handlers.HealthCheck)

	// The provider redirects the user's browser here, so the route cannot
	// sit behind the API key. The single-use state token gates it instead.
	r.GET("/api/v1/oauth/:provider/callback", oauthHandler.Callback())

	v1 := r.Group("/api/v1")
	v1.Use(middleware.APIKeyMiddleware(deps.APIKey))
	v1.Use(middleware.UserIdMiddleware())
	{
		oauth := v1.Group("/oauth")
		{
			oauth.GET("/:provider/connect", oauthHandler.Connect())
		}

		accounts := v1.Group("/accounts")
		{
			accounts.GET("", accountsHandler.List())
			accounts.GET("/:id", accountsHandler.Get())
			accounts.DELETE("/:id", accountsHandler.Delete())
			accounts.POST("/:id/sync", accountsHandler.TriggerSync())
		}

		threads := v1.Group("/threads")
		{
			threads.GET("", threadsHandler.List())
			threads.GET("/:id/messages", threadsHandler.Messages())
		}

		messages := v1.Group("/messages")
		{
			messages.PATCH("/:id/read", threadsHandler.MarkRead())
			messages.POST("/:id/reply", emailsHandler.Reply())
		}

		emails := v1.Group("/emails")
		{
			emails.POST("", emailsHandler.Send())
		}
	}
}
