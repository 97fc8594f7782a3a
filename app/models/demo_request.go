package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DemoRequest is a submission of the "book a demo" form.
type DemoRequest struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	PublicID      string    `gorm:"type:char(36);not null;uniqueIndex" json:"id"`
	Name          string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email         string    `gorm:"type:varchar(200);not null;index" json:"email" validate:"required,email,max=200"`
	Company       string    `gorm:"type:varchar(200);not null" json:"company" validate:"required,max=200"`
	JobTitle      string    `gorm:"type:varchar(150);default:''" json:"job_title" validate:"max=150"`
	CompanySize   string    `gorm:"type:varchar(20);default:''" json:"company_size" validate:"omitempty,oneof=1-10 11-50 51-200 201-1000 1000+"`
	UseCase       string    `gorm:"type:text" json:"use_case" validate:"max=5000"`
	PreferredDate string    `gorm:"type:varchar(10);default:''" json:"preferred_date" validate:"omitempty,datetime=2006-01-02"`
	IPAddress     string    `gorm:"type:varchar(45);default:''" json:"-"`
	UserAgent     string    `gorm:"type:varchar(255);default:''" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (d *DemoRequest) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Company = strings.TrimSpace(d.Company)
	d.JobTitle = strings.TrimSpace(d.JobTitle)
	d.CompanySize = strings.TrimSpace(d.CompanySize)
	d.UseCase = strings.TrimSpace(d.UseCase)
	d.PreferredDate = strings.TrimSpace(d.PreferredDate)
}

func (d *DemoRequest) Validate() error {
	return formValidator.Struct(d)
}

func (d *DemoRequest) BeforeCreate(_ *gorm.DB) error {
	if d.PublicID == "" {
		d.PublicID = uuid.NewString()
	}
	return nil
}
