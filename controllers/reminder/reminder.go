package reminder

import (
	"time"

	"eduops-notify/logger"
	reminderService "eduops-notify/services/reminder"
	"eduops-notify/types"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Controller handles reminder scheduler HTTP requests
type Controller struct {
	DB              *gorm.DB
	ReminderService *reminderService.Service
}

// NewReminderController creates a new reminder controller
func NewReminderController(db *gorm.DB, svc *reminderService.Service) *Controller {
	return &Controller{
		DB:              db,
		ReminderService: svc,
	}
}

// runTickRequest optionally overrides the evaluation instant, mainly for
// operational replays after an incident.
type runTickRequest struct {
	TickTime *time.Time `json:"tick_time"`
}

// RunTick triggers one scheduler evaluation pass immediately.
func (rc *Controller) RunTick(c *fiber.Ctx) error {
	var req runTickRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
				Status:  fiber.StatusBadRequest,
				Message: "Invalid request body",
				Data:    nil,
			})
		}
	}

	tickTime := rc.ReminderService.Clock.Now()
	if req.TickTime != nil {
		tickTime = *req.TickTime
	}

	if err := rc.ReminderService.RunTick(tickTime); err != nil {
		logger.Error("Manual reminder tick failed", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Reminder tick failed",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Reminder tick completed",
		Data:    fiber.Map{"tick_time": tickTime},
	})
}

// Status reports upcoming sessions and their reminder fire state.
func (rc *Controller) Status(c *fiber.Ctx) error {
	statuses, err := rc.ReminderService.UpcomingStatus()
	if err != nil {
		logger.Error("Failed to load reminder status", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Failed to retrieve reminder status",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Reminder status retrieved successfully",
		Data:    statuses,
	})
}
