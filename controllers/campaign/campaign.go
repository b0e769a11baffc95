package campaign

import (
	"context"
	"strings"

	"eduops-notify/logger"
	"eduops-notify/middleware"
	campaignService "eduops-notify/services/campaign"
	templateService "eduops-notify/services/template"
	"eduops-notify/types"
	campaignTypes "eduops-notify/types/campaign"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Controller handles campaign and template HTTP requests
type Controller struct {
	DB              *gorm.DB
	CampaignService *campaignService.Service
	TemplateService *templateService.Service
}

// NewCampaignController creates a new campaign controller
func NewCampaignController(db *gorm.DB, cs *campaignService.Service, ts *templateService.Service) *Controller {
	return &Controller{
		DB:              db,
		CampaignService: cs,
		TemplateService: ts,
	}
}

// CreateCampaign validates the payload, renders every recipient message
// against the template, and stores the campaign in draft state.
func (cc *Controller) CreateCampaign(c *fiber.Ctx) error {
	var req campaignTypes.CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	if req.Name == "" || req.TemplateID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Campaign name and template_id are required",
			Data:    nil,
		})
	}
	if len(req.Recipients) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "At least one recipient is required",
			Data:    nil,
		})
	}
	// Recipient addresses are not validated here: a malformed address
	// is marked Failed during dispatch instead of blocking the batch.
	campaignID, err := cc.CampaignService.CreateCampaign(req, middleware.UserEmail(c))
	if err != nil {
		logger.Error("Failed to create campaign", err)
		status := fiber.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "placeholder") {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(types.ApiResponse{
			Status:  status,
			Message: err.Error(),
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(types.ApiResponse{
		Status:  fiber.StatusCreated,
		Message: "Campaign created successfully",
		Data:    fiber.Map{"campaign_id": campaignID},
	})
}

// SendCampaign starts delivery for a draft or resumable campaign. The
// dispatch loop runs in the background; clients poll the status endpoint.
func (cc *Controller) SendCampaign(c *fiber.Ctx) error {
	campaignID := c.Params("id")
	if campaignID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Campaign ID is required",
			Data:    nil,
		})
	}

	if _, err := cc.CampaignService.GetCampaignStatus(campaignID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ApiResponse{
			Status:  fiber.StatusNotFound,
			Message: "Campaign not found",
			Data:    nil,
		})
	}

	go func() {
		if err := cc.CampaignService.StartCampaign(context.Background(), campaignID); err != nil {
			logger.Error("Campaign dispatch failed: "+campaignID, err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(types.ApiResponse{
		Status:  fiber.StatusAccepted,
		Message: "Campaign dispatch started",
		Data:    fiber.Map{"campaign_id": campaignID},
	})
}

// CancelCampaign stops further dispatching for an in-flight campaign.
func (cc *Controller) CancelCampaign(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	if err := cc.CampaignService.CancelCampaign(campaignID); err != nil {
		status := fiber.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = fiber.StatusNotFound
		} else if strings.Contains(err.Error(), "already finished") {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(types.ApiResponse{
			Status:  status,
			Message: err.Error(),
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Campaign cancelled",
		Data:    fiber.Map{"campaign_id": campaignID},
	})
}

// GetCampaignStatus returns a consistent snapshot of a campaign and its
// per-recipient delivery states.
func (cc *Controller) GetCampaignStatus(c *fiber.Ctx) error {
	campaignID := c.Params("id")

	status, err := cc.CampaignService.GetCampaignStatus(campaignID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ApiResponse{
			Status:  fiber.StatusNotFound,
			Message: "Campaign not found",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Campaign status retrieved successfully",
		Data:    status,
	})
}

// GetAllCampaigns lists campaigns newest first.
func (cc *Controller) GetAllCampaigns(c *fiber.Ctx) error {
	campaigns, err := cc.CampaignService.GetAllCampaigns()
	if err != nil {
		logger.Error("Failed to list campaigns", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Failed to retrieve campaigns",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Campaigns retrieved successfully",
		Data:    campaigns,
	})
}

// CreateTemplate stores a reusable email template.
func (cc *Controller) CreateTemplate(c *fiber.Ctx) error {
	var req campaignTypes.CreateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	if req.Name == "" || req.Subject == "" || req.HTMLContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Name, subject and html_content are required",
			Data:    nil,
		})
	}

	tmpl, err := cc.TemplateService.CreateTemplate(req.Name, req.Subject, req.HTMLContent, req.Category, middleware.UserEmail(c))
	if err != nil {
		logger.Error("Failed to create template", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Failed to create template",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(types.ApiResponse{
		Status:  fiber.StatusCreated,
		Message: "Template created successfully",
		Data:    tmpl,
	})
}

// GetAllTemplates lists the stored templates.
func (cc *Controller) GetAllTemplates(c *fiber.Ctx) error {
	templates, err := cc.TemplateService.GetAllTemplates()
	if err != nil {
		logger.Error("Failed to list templates", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Failed to retrieve templates",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Templates retrieved successfully",
		Data:    templates,
	})
}

// GetTemplate returns a single template by ID.
func (cc *Controller) GetTemplate(c *fiber.Ctx) error {
	tmpl, err := cc.TemplateService.GetTemplate(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ApiResponse{
			Status:  fiber.StatusNotFound,
			Message: "Template not found",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Template retrieved successfully",
		Data:    tmpl,
	})
}
