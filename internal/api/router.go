package api

import (
	"log/slog"

	"focusguard/internal/api/handlers"
	"focusguard/internal/api/middleware"
	"focusguard/internal/core"

	"github.com/gin-gonic/gin"
)

// StrictGuard is the strict-mode surface used by the router
type StrictGuard interface {
	middleware.StrictAuthorizer
	handlers.StrictModeManager
}

// Presenter is the intervention surface used by the router
type Presenter interface {
	handlers.OverrideGranter
	handlers.OverlayReader
}

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Limits     core.AppLimitStorage
	Overrides  core.OverrideLogStorage
	Profiles   handlers.ProfileManager
	Breaks     core.BreakManager
	Ledger     handlers.UsageReader
	Resolver   handlers.DecisionChecker
	Monitor    handlers.MonitorReader
	Presenter  Presenter
	Strict     StrictGuard
	Bridge     handlers.AgentBridge
	Clock      core.Clock
	APIKey     string
	AgentToken string
	Logger     *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	// Destructive actions need the PIN while strict mode is on
	strict := middleware.StrictPIN(config.Strict, config.Logger)
	// Edits that let apps run longer need it too
	pin := handlers.NewPINCheck(config.Strict, config.Logger)

	// API v1 routes (with authentication)
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuth(config.APIKey))
	v1.Use(middleware.Audit(config.Logger))
	{
		limitsHandler := handlers.NewLimitsHandler(config.Limits, pin, config.Logger)
		v1.GET("/limits", limitsHandler.ListLimits)
		v1.GET("/limits/:package", limitsHandler.GetLimit)
		v1.PUT("/limits/:package", limitsHandler.PutLimit)
		v1.DELETE("/limits/:package", strict, limitsHandler.DeleteLimit)

		profilesHandler := handlers.NewProfilesHandler(config.Profiles, config.Clock, pin, config.Logger)
		v1.GET("/profiles", profilesHandler.ListProfiles)
		v1.POST("/profiles", profilesHandler.CreateProfile)
		v1.GET("/profiles/effective", profilesHandler.GetEffective)
		v1.GET("/profiles/:id", profilesHandler.GetProfile)
		v1.PATCH("/profiles/:id", profilesHandler.UpdateProfile)
		v1.DELETE("/profiles/:id", strict, profilesHandler.DeleteProfile)
		v1.PUT("/profiles/:id/apps/:package", profilesHandler.SetPolicy)
		v1.DELETE("/profiles/:id/apps/:package", profilesHandler.RemovePolicy)
		v1.POST("/profiles/:id/activate", profilesHandler.Activate)
		v1.POST("/profiles/:id/deactivate", strict, profilesHandler.Deactivate)

		breaksHandler := handlers.NewBreaksHandler(config.Breaks, config.Clock, pin, config.Logger)
		v1.GET("/break", breaksHandler.GetBreak)
		v1.POST("/break/start", breaksHandler.StartBreak)
		v1.POST("/break/stop", strict, breaksHandler.StopBreak)

		usageHandler := handlers.NewUsageHandler(config.Ledger, config.Clock, config.Logger)
		v1.GET("/usage/today", usageHandler.GetDay)
		v1.GET("/usage/daily", usageHandler.GetDailyTotals)
		v1.GET("/usage/:package", usageHandler.GetPackage)

		decisionsHandler := handlers.NewDecisionsHandler(config.Resolver, config.Presenter, config.Clock, config.Logger)
		v1.GET("/decisions/:package", decisionsHandler.GetDecision)

		monitorHandler := handlers.NewMonitorHandler(config.Monitor, config.Presenter)
		v1.GET("/monitor", monitorHandler.GetMonitor)

		overridesHandler := handlers.NewOverridesHandler(config.Overrides, config.Presenter, config.Logger)
		v1.GET("/overrides", overridesHandler.ListOverrides)
		v1.POST("/overrides/challenge", overridesHandler.IssueChallenge)
		v1.POST("/overrides/submit", overridesHandler.SubmitOverride)
		v1.POST("/overrides/extend", overridesHandler.GrantExtension)

		strictHandler := handlers.NewStrictHandler(config.Strict, config.Logger)
		v1.GET("/strict", strictHandler.GetStatus)
		v1.POST("/strict/enable", strictHandler.Enable)
		v1.POST("/strict/disable", strictHandler.Disable)
	}

	// Agent routes use their own token, not the API key
	if config.Bridge != nil {
		agentHandler := handlers.NewAgentHandler(config.Bridge, config.Logger)
		agentGroup := router.Group("/v1/agent")
		agentGroup.Use(middleware.AgentAuth(config.AgentToken))
		{
			agentGroup.POST("/foreground", agentHandler.ReportForeground)
			agentGroup.POST("/usage-stats", agentHandler.ReportUsageStats)
			agentGroup.GET("/directive", agentHandler.GetDirective)
			agentGroup.POST("/directive/:handle/dismissed", agentHandler.AckDismissed)
		}
	}

	return router
}
