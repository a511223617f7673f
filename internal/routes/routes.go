package routes

import (
	"github.com/gin-gonic/gin"

	"blogapi/internal/handlers"
)

// Guards holds the middleware applied to route groups.
type Guards struct {
	// Auth rejects requests without a valid bearer token.
	Auth gin.HandlerFunc
	// RateLimit throttles the unauthenticated auth endpoints.
	RateLimit gin.HandlerFunc
}

func SetupRoutes(
	r *gin.Engine,
	guards Guards,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	postHandler *handlers.PostHandler,
	commentHandler *handlers.CommentHandler,
	healthHandler *handlers.HealthHandler,
	metricsHandler gin.HandlerFunc,
) *gin.Engine {

	// ---- ops
	r.GET("/healthz", healthHandler.Health)
	if metricsHandler != nil {
		r.GET("/metrics", metricsHandler)
	}

	// ---- public
	public := r.Group("/", present(guards.RateLimit)...)
	{
		public.POST("/register", authHandler.Register)
		public.POST("/login", authHandler.Login)
		public.POST("/forgot-password", authHandler.ForgotPassword)
		public.POST("/reset-password", authHandler.ResetPassword)
	}

	// ---- protected
	protected := r.Group("/", present(guards.Auth)...)
	{
		protected.POST("/logout", authHandler.Logout)
		protected.GET("/user", userHandler.Me)
	}

	// POSTS
	posts := protected.Group("/post")
	{
		posts.GET("", postHandler.List)
		posts.POST("", postHandler.Create)
		posts.GET("/:id", postHandler.Get)
		posts.PUT("/:id", postHandler.Update)
		posts.PATCH("/:id", postHandler.Update)
		posts.DELETE("/:id", postHandler.Delete)

		// COMMENTS
		posts.POST("/:id/comments", commentHandler.Create)
		posts.DELETE("/:id/comments/:comment", commentHandler.Delete)
	}

	return r
}

func present(hs ...gin.HandlerFunc) []gin.HandlerFunc {
	out := hs[:0]
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
