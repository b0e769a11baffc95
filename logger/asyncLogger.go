package logger

import (
	"log"

	log_model "eduops-notify/models/log"
	"eduops-notify/types"

	"gorm.io/gorm"
)

// AsyncLogger persists delivery audit entries without blocking the
// dispatch workers. Entries are pushed into a buffered channel and
// drained into the delivery_logs table by ProcessLog.
type AsyncLogger struct {
	db      *gorm.DB
	channel chan types.DeliveryLogEntry
}

func NewAsyncLogger(db *gorm.DB) *AsyncLogger {
	return &AsyncLogger{
		db:      db,
		channel: make(chan types.DeliveryLogEntry, 100), // Buffered channel to hold log entries
	}
}

func (logger *AsyncLogger) ProcessLog() {
	log.Println("Starting asynchronous delivery logger...")

	for entry := range logger.channel {
		dbLog := log_model.DeliveryLog{
			CampaignID:       entry.CampaignID,
			AttemptID:        entry.AttemptID,
			Recipient:        entry.Recipient,
			Subject:          entry.Subject,
			AttemptNumber:    entry.AttemptNumber,
			Outcome:          entry.Outcome,
			TransportMessage: entry.TransportMessage,
			CreatedAt:        entry.CreatedAt,
		}

		if err := logger.db.Create(&dbLog).Error; err != nil {
			log.Printf("Failed to insert delivery log entry: %v", err)
		}
	}
}

// Log pushes a delivery audit entry into the channel
func (logger *AsyncLogger) Log(entry types.DeliveryLogEntry) {
	logger.channel <- entry
}

// Close stops the background drain after pending entries are flushed.
func (logger *AsyncLogger) Close() {
	close(logger.channel)
}
