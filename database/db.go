package database

import (
	"fmt"
	"os"

	"eduops-notify/logger"
	campaignModel "eduops-notify/models/campaign"
	logModel "eduops-notify/models/log"
	otpModel "eduops-notify/models/otp"
	reminderModel "eduops-notify/models/reminder"
	sessionModel "eduops-notify/models/session"
	templateModel "eduops-notify/models/template"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB initializes the database connection with auto migration and indexing.
// A failure here is fatal to the caller: without durable storage the
// resumability and catch-up guarantees cannot hold.
func InitDB() (*gorm.DB, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", err)
	}

	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	database := os.Getenv("DB_DATABASE")
	user := os.Getenv("DB_USERNAME")
	password := os.Getenv("DB_PASSWORD")
	sslmode := os.Getenv("DB_SSLMODE")

	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, database, sslmode)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Error("Failed to connect to the database", err)
		return nil, err
	}
	logger.Success("Successfully connected to the database")

	if err := AutoMigrate(DB); err != nil {
		logger.Error("Failed to run migrations", err)
		return nil, err
	}
	logger.Success("All migrations completed successfully")

	if err := createIndexes(DB); err != nil {
		logger.Error("Failed to create indexes", err)
		return nil, err
	}
	logger.Success("All indexes created successfully")

	return DB, nil
}

// AutoMigrate runs auto migration for all models in dependency order.
func AutoMigrate(db *gorm.DB) error {
	// Stage 1: standalone tables
	stage1Models := []interface{}{
		&sessionModel.Session{},
		&templateModel.EmailTemplate{},
		&otpModel.OTP{},
	}

	for _, model := range stage1Models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Stage 2: tables referencing stage 1
	stage2Models := []interface{}{
		&campaignModel.Campaign{},
		&campaignModel.RecipientAttempt{},
		&reminderModel.ReminderRule{},
	}

	for _, model := range stage2Models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Stage 3: audit tables
	auditModels := []interface{}{
		&otpModel.OTPEvent{},
		&campaignModel.CampaignEvent{},
		&logModel.DeliveryLog{},
	}

	for _, model := range auditModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	return nil
}

// createIndexes creates additional indexes for better performance
func createIndexes(db *gorm.DB) error {
	// OTP indexes
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_otps_email_used ON otps(email, is_used)").Error; err != nil {
		return fmt.Errorf("failed to create otp email index: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_otps_expires_at ON otps(expires_at)").Error; err != nil {
		return fmt.Errorf("failed to create otp expires_at index: %w", err)
	}

	// Campaign indexes
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)").Error; err != nil {
		return fmt.Errorf("failed to create campaign status index: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_campaigns_created_at ON campaigns(created_at)").Error; err != nil {
		return fmt.Errorf("failed to create campaign created_at index: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_recipient_attempts_campaign_state ON recipient_attempts(campaign_id, state)").Error; err != nil {
		return fmt.Errorf("failed to create recipient attempt state index: %w", err)
	}

	// Session and reminder indexes
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time)").Error; err != nil {
		return fmt.Errorf("failed to create session start_time index: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_reminder_rules_session_id ON reminder_rules(session_id)").Error; err != nil {
		return fmt.Errorf("failed to create reminder rule session index: %w", err)
	}

	// Delivery log indexes
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_delivery_logs_campaign_id ON delivery_logs(campaign_id)").Error; err != nil {
		return fmt.Errorf("failed to create delivery log campaign index: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_delivery_logs_created_at ON delivery_logs(created_at)").Error; err != nil {
		return fmt.Errorf("failed to create delivery log created_at index: %w", err)
	}

	return nil
}
