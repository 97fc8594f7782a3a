package models

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationFields maps the json field names of a failed form validation to
// the rule that rejected them. It returns nil for other errors.
func ValidationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

// ContactMessage is a submission of the public contact form.
type ContactMessage struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	PublicID  string    `gorm:"type:char(36);not null;uniqueIndex" json:"id"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email     string    `gorm:"type:varchar(200);not null;index" json:"email" validate:"required,email,max=200"`
	Company   string    `gorm:"type:varchar(200);default:''" json:"company" validate:"max=200"`
	Phone     string    `gorm:"type:varchar(50);default:''" json:"phone" validate:"max=50"`
	Message   string    `gorm:"type:text;not null" json:"message" validate:"required,min=10,max=5000"`
	IPAddress string    `gorm:"type:varchar(45);default:''" json:"-"`
	UserAgent string    `gorm:"type:varchar(255);default:''" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// Normalize trims user input before validation.
func (m *ContactMessage) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	m.Company = strings.TrimSpace(m.Company)
	m.Phone = strings.TrimSpace(m.Phone)
	m.Message = strings.TrimSpace(m.Message)
}

func (m *ContactMessage) Validate() error {
	return formValidator.Struct(m)
}

func (m *ContactMessage) BeforeCreate(_ *gorm.DB) error {
	if m.PublicID == "" {
		m.PublicID = uuid.NewString()
	}
	return nil
}
