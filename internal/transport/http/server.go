package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "sitebot/internal/app"
	"sitebot/internal/bootstrap"
	"sitebot/internal/transport/http/handler"
	"sitebot/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	repos := app.Repos
	authService := appsvc.NewAuthService(
		repos.Users,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
		app.Config.Quota.DefaultPlan,
	)
	siteService := appsvc.NewSiteService(repos.Sites, repos.Jobs, app.Vectors, app.Orchestrator, app.SiteCache, app.Events, app.Logger)
	chatService := appsvc.NewChatService(repos.Sites, repos.Users, app.SiteCache, app.Quota, app.Chain, app.Meter, app.Logger)
	widgetService := appsvc.NewWidgetService(repos.Sites, app.SiteCache, app.Config.Widget.PublicBaseURL, app.Logger)
	usageService := appsvc.NewUsageService(repos.Usage, repos.Users, app.Config.Quota.MonthlyChats, app.Config.Quota.DefaultPlan)

	authHandler := handler.NewAuthHandler(authService)
	siteHandler := handler.NewSiteHandler(siteService, app.Logger)
	chatHandler := handler.NewChatHandler(chatService, app.Logger)
	widgetHandler := handler.NewWidgetHandler(widgetService)
	usageHandler := handler.NewUsageHandler(usageService)

	widget := router.Group("/widget/:siteId", middleware.PublicCORS())
	widget.GET("/script.js", widgetHandler.Script)
	widget.POST("/chat", chatHandler.WidgetAsk)
	widget.OPTIONS("/chat", func(*gin.Context) {})

	auth := middleware.AuthJWT(app.Config.Auth.JWTSecret)
	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", auth, authHandler.Me)

	sites := v1.Group("/sites", auth)
	sites.POST("", siteHandler.Create)
	sites.GET("", siteHandler.List)
	sites.GET("/:id", siteHandler.Get)
	sites.PATCH("/:id", siteHandler.Update)
	sites.DELETE("/:id", siteHandler.Delete)
	sites.POST("/:id/train", siteHandler.Train)
	sites.GET("/:id/jobs", siteHandler.ListJobs)
	sites.GET("/:id/events", siteHandler.Events)

	v1.GET("/jobs/:id", auth, siteHandler.GetJob)
	v1.POST("/chat", auth, chatHandler.Ask)
	v1.GET("/usage", auth, usageHandler.Report)

	return router
}
