package routes

import (
	"os"
	"strconv"
	"time"

	authController "eduops-notify/controllers/auth"
	campaignController "eduops-notify/controllers/campaign"
	reminderController "eduops-notify/controllers/reminder"
	"eduops-notify/httpServices/mail"
	"eduops-notify/logger"
	"eduops-notify/middleware"
	campaignService "eduops-notify/services/campaign"
	dispatcherService "eduops-notify/services/dispatcher"
	otpService "eduops-notify/services/otp"
	"eduops-notify/services/ratelimit"
	reminderService "eduops-notify/services/reminder"
	templateService "eduops-notify/services/template"
	"eduops-notify/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func rateLimitPerMinute() int {
	if v := os.Getenv("EMAIL_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 60
}

// SetupRoutes wires the delivery pipeline and registers every HTTP route.
// It returns the reminder service so the caller can run the scheduler loop.
func SetupRoutes(app *fiber.App, db *gorm.DB) *reminderService.Service {
	asyncLogger := logger.NewAsyncLogger(db)
	limiter := ratelimit.NewFixedWindowLimiter(rateLimitPerMinute(), time.Minute, utils.SystemClock{})
	dispatcher := dispatcherService.NewDispatcher(mail.NewSMTPMailer(), limiter, asyncLogger)

	templates := templateService.NewTemplateService(db)
	campaigns := campaignService.NewCampaignService(db, dispatcher, templates)
	otps := otpService.NewOTPService(db, dispatcher)
	reminders := reminderService.NewReminderService(db, campaigns, templates)

	authCtrl := authController.NewAuthController(db, otps)
	campaignCtrl := campaignController.NewCampaignController(db, campaigns, templates)
	reminderCtrl := reminderController.NewReminderController(db, reminders)

	// Start the async logger processing goroutine
	go asyncLogger.ProcessLog()

	// Index route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "eduops-notify", "status": "ok"})
	})

	/*=============================================================================
	| Public Routes
	===============================================================================*/
	api := app.Group("/api")
	api.Post("/auth/request-otp", authCtrl.RequestOTP)
	api.Post("/auth/verify-otp", authCtrl.VerifyOTP)

	/*=============================================================================
	| Campaign Routes
	===============================================================================*/
	campaignGroup := api.Group("/campaigns").Use(middleware.RequireAuthentication())
	campaignGroup.Post("/", campaignCtrl.CreateCampaign)
	campaignGroup.Get("/", campaignCtrl.GetAllCampaigns)
	campaignGroup.Post("/:id/send", campaignCtrl.SendCampaign)
	campaignGroup.Post("/:id/cancel", campaignCtrl.CancelCampaign)
	campaignGroup.Get("/:id", campaignCtrl.GetCampaignStatus)

	/*=============================================================================
	| Template Routes
	===============================================================================*/
	templateGroup := api.Group("/templates").Use(middleware.RequireAuthentication())
	templateGroup.Post("/", campaignCtrl.CreateTemplate)
	templateGroup.Get("/", campaignCtrl.GetAllTemplates)
	templateGroup.Get("/:id", campaignCtrl.GetTemplate)

	/*=============================================================================
	| Reminder Routes
	===============================================================================*/
	reminderGroup := api.Group("/reminders").Use(middleware.RequireAuthentication())
	reminderGroup.Post("/run-tick", reminderCtrl.RunTick)
	reminderGroup.Get("/status", reminderCtrl.Status)

	return reminders
}
