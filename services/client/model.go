package client

import "time"

type Client struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	Name     string `gorm:"column:name" json:"name"`
	Email    string `gorm:"column:email;uniqueIndex" json:"email"`
	Document string `gorm:"column:document;uniqueIndex" json:"document"`
	Phone    string `gorm:"column:phone" json:"phone,omitempty"`
	Contact  string `gorm:"column:contact" json:"contact,omitempty"`
	Active   bool   `gorm:"column:active;default:true" json:"active"`
	Notes    string `gorm:"column:notes" json:"notes,omitempty"`
}

func (Client) TableName() string { return "clients" }
