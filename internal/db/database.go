package database

import (
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jack-merrell/offley.fm/internal/config"
)

// IngestEvent is one row of the admin audit log: every ingestion
// attempt, successful or not.
type IngestEvent struct {
	gorm.Model
	StationID string `gorm:"index" json:"station_id"`
	Title     string `json:"title"`
	Frequency string `json:"frequency"`
	BPM       int    `json:"bpm,omitempty"`
	Status    string `gorm:"index" json:"status"` // "ok", "validation_error", "transcode_error"
	Detail    string `json:"detail,omitempty"`
}

type Client struct {
	DB *gorm.DB
}

func New(cfg *config.Config) *Client {
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}

	log.Println("✅ Database Connected")
	return &Client{DB: db}
}

// NewInMemory is for tests.
func NewInMemory() *Client {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		log.Fatalf("in-memory database: %v", err)
	}
	return &Client{DB: db}
}

func (c *Client) AutoMigrate() {
	if err := c.DB.AutoMigrate(&IngestEvent{}); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

// RecordIngest appends an audit row. Best-effort: the pipeline never
// fails an ingestion over bookkeeping.
func (c *Client) RecordIngest(ev IngestEvent) {
	if c == nil || c.DB == nil {
		return
	}
	if err := c.DB.Create(&ev).Error; err != nil {
		log.Printf("⚠️ ingest audit write failed: %v", err)
	}
}

func (c *Client) RecentIngests(limit int) ([]IngestEvent, error) {
	var events []IngestEvent
	err := c.DB.Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}
