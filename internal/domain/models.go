// Package domain defines the persistence models for products, chat sessions,
// and chat messages. These types are mapped with GORM and form the core data
// layer of the pharmacy assistant backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Sender values for ChatMessage.Sender.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Product represents one catalog item sold by the pharmacy. Products are the
// retrieval corpus for the assistant: every create/update/delete triggers a
// background rebuild of the vector index.
//
// Invariants enforced at the DB level:
//   - Name is unique.
//   - Price and Stock are non-negative.
type Product struct {
	ID                uint           `json:"id"                 gorm:"primaryKey;autoIncrement"`
	Name              string         `json:"name"               gorm:"type:varchar(255);not null;uniqueIndex:ux_products_name"`
	Type              string         `json:"type"               gorm:"type:varchar(128)"`
	UseCase           string         `json:"use_case"           gorm:"type:text"`
	Warnings          string         `json:"warnings"           gorm:"type:text"`
	Contraindications string         `json:"contraindications"  gorm:"type:text"`
	Price             float64        `json:"price"              gorm:"not null;check:price >= 0"`
	Stock             int            `json:"stock"              gorm:"not null;check:stock >= 0"`
	ExpirationDate    *time.Time     `json:"expiration_date,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-"                  gorm:"index"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// ChatSession represents one conversation between a user and the assistant.
// Sessions carry a short generated title for UI display and an active flag;
// closed sessions are kept for history.
type ChatSession struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_sessions"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null;default:'Nueva conversación'"`
	IsActive  bool           `json:"is_active"  gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage is a single utterance within a session, authored either by the
// "user" or the "bot". The response generator only ever reads the most recent
// window of messages per session; persistence is owned by the service layer.
type ChatMessage struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string         `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Sender    string         `json:"sender"     gorm:"type:varchar(8);not null;check:sender IN ('user','bot')"`
	Message   string         `json:"message"    gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Session is the parent conversation. Messages are cascade-deleted
	// if their session is removed.
	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }
