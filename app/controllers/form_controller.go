package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/tcdynamics/workflowai/app/models"
	"github.com/tcdynamics/workflowai/app/repository"
	"github.com/tcdynamics/workflowai/internal/pkg/hcaptcha"
	"github.com/tcdynamics/workflowai/internal/pkg/mail"
	"github.com/tcdynamics/workflowai/internal/pkg/metrics"
)

const (
	formContact = "contact"
	formDemo    = "demo_request"

	mailTimeout = 15 * time.Second
)

type contactRequest struct {
	Name             string `json:"name" form:"name"`
	Email            string `json:"email" form:"email"`
	Company          string `json:"company" form:"company"`
	Phone            string `json:"phone" form:"phone"`
	Message          string `json:"message" form:"message"`
	CaptchaToken     string `json:"captcha_token" form:"captcha_token"`
	HCaptchaResponse string `json:"h-captcha-response" form:"h-captcha-response"`
}

type demoRequest struct {
	Name             string `json:"name" form:"name"`
	Email            string `json:"email" form:"email"`
	Company          string `json:"company" form:"company"`
	JobTitle         string `json:"job_title" form:"job_title"`
	CompanySize      string `json:"company_size" form:"company_size"`
	UseCase          string `json:"use_case" form:"use_case"`
	PreferredDate    string `json:"preferred_date" form:"preferred_date"`
	CaptchaToken     string `json:"captcha_token" form:"captcha_token"`
	HCaptchaResponse string `json:"h-captcha-response" form:"h-captcha-response"`
}

// FormController accepts the public contact and demo request forms.
type FormController struct {
	submissions repository.SubmissionRepository
	captcha     hcaptcha.Verifier
	sender      mail.Sender
	from        string
	teamTo      string
	// background runs mail delivery off the request path.
	background func(func())
}

func NewFormController(submissions repository.SubmissionRepository, captcha hcaptcha.Verifier, sender mail.Sender, from, teamTo string) *FormController {
	if captcha == nil {
		captcha = hcaptcha.Disabled{}
	}
	return &FormController{
		submissions: submissions,
		captcha:     captcha,
		sender:      sender,
		from:        from,
		teamTo:      teamTo,
		background:  func(fn func()) { go fn() },
	}
}

func (f *FormController) HandleContact(c *fiber.Ctx) error {
	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return f.reject(c, formContact, "invalid", fiber.StatusBadRequest, fiber.Map{"error": "invalid_request", "message": "Request body could not be parsed"})
	}

	msg := &models.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   req.Phone,
		Message: req.Message,
	}
	msg.Normalize()
	if err := msg.Validate(); err != nil {
		return f.reject(c, formContact, "invalid", fiber.StatusBadRequest, fiber.Map{"error": "validation_failed", "fields": models.ValidationFields(err)})
	}
	if rejected, err := f.checkCaptcha(c, formContact, firstNonEmpty(req.CaptchaToken, req.HCaptchaResponse)); rejected {
		return err
	}

	msg.IPAddress = truncate(GetClientIP(c), 45)
	msg.UserAgent = truncate(c.Get(fiber.HeaderUserAgent), 255)
	if err := f.submissions.CreateContactMessage(c.UserContext(), msg); err != nil {
		log.Error().Err(err).Str("form", formContact).Msg("failed to store form submission")
		return f.reject(c, formContact, "error", fiber.StatusInternalServerError, fiber.Map{"error": "internal_server_error", "message": "Submission could not be saved"})
	}

	f.sendMails(msg.PublicID,
		mailJob{to: f.teamTo, subject: fmt.Sprintf("[WorkFlowAI] Contact message from %s", msg.Name), template: mail.TemplateContactTeam, data: msg},
		mailJob{to: msg.Email, subject: "We received your message", template: mail.TemplateContactConfirm, data: msg},
	)

	metrics.FormSubmissionsTotal.WithLabelValues(formContact, "accepted").Inc()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "id": msg.PublicID})
}

func (f *FormController) HandleDemoRequest(c *fiber.Ctx) error {
	var req demoRequest
	if err := c.BodyParser(&req); err != nil {
		return f.reject(c, formDemo, "invalid", fiber.StatusBadRequest, fiber.Map{"error": "invalid_request", "message": "Request body could not be parsed"})
	}

	demo := &models.DemoRequest{
		Name:          req.Name,
		Email:         req.Email,
		Company:       req.Company,
		JobTitle:      req.JobTitle,
		CompanySize:   req.CompanySize,
		UseCase:       req.UseCase,
		PreferredDate: req.PreferredDate,
	}
	demo.Normalize()
	if err := demo.Validate(); err != nil {
		return f.reject(c, formDemo, "invalid", fiber.StatusBadRequest, fiber.Map{"error": "validation_failed", "fields": models.ValidationFields(err)})
	}
	if rejected, err := f.checkCaptcha(c, formDemo, firstNonEmpty(req.CaptchaToken, req.HCaptchaResponse)); rejected {
		return err
	}

	demo.IPAddress = truncate(GetClientIP(c), 45)
	demo.UserAgent = truncate(c.Get(fiber.HeaderUserAgent), 255)
	if err := f.submissions.CreateDemoRequest(c.UserContext(), demo); err != nil {
		log.Error().Err(err).Str("form", formDemo).Msg("failed to store form submission")
		return f.reject(c, formDemo, "error", fiber.StatusInternalServerError, fiber.Map{"error": "internal_server_error", "message": "Submission could not be saved"})
	}

	f.sendMails(demo.PublicID,
		mailJob{to: f.teamTo, subject: fmt.Sprintf("[WorkFlowAI] Demo request from %s (%s)", demo.Name, demo.Company), template: mail.TemplateDemoTeam, data: demo},
		mailJob{to: demo.Email, subject: "Your WorkFlowAI demo request", template: mail.TemplateDemoConfirm, data: demo},
	)

	metrics.FormSubmissionsTotal.WithLabelValues(formDemo, "accepted").Inc()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "id": demo.PublicID})
}

// checkCaptcha writes the error response and reports rejected=true when the
// token does not verify.
func (f *FormController) checkCaptcha(c *fiber.Ctx, form, token string) (bool, error) {
	err := f.captcha.Verify(c.UserContext(), token, GetClientIP(c))
	if err == nil {
		return false, nil
	}
	if errors.Is(err, hcaptcha.ErrEmptyToken) || errors.Is(err, hcaptcha.ErrFailed) {
		log.Info().Err(err).Str("form", form).Msg("captcha rejected")
		return true, f.reject(c, form, "captcha_failed", fiber.StatusBadRequest, fiber.Map{"error": "captcha_failed", "message": "Captcha verification failed"})
	}
	log.Error().Err(err).Str("form", form).Msg("captcha verification unavailable")
	return true, f.reject(c, form, "error", fiber.StatusBadGateway, fiber.Map{"error": "captcha_unavailable", "message": "Captcha verification is temporarily unavailable"})
}

func (f *FormController) reject(c *fiber.Ctx, form, result string, status int, body fiber.Map) error {
	metrics.FormSubmissionsTotal.WithLabelValues(form, result).Inc()
	return c.Status(status).JSON(body)
}

type mailJob struct {
	to       string
	subject  string
	template string
	data     any
}

// sendMails delivers best-effort; failures are logged and never reach the
// submitter.
func (f *FormController) sendMails(ref string, jobs ...mailJob) {
	if f.sender == nil {
		return
	}
	f.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		for _, job := range jobs {
			if job.to == "" {
				continue
			}
			kind := strings.TrimSuffix(job.template, ".html")
			html, err := mail.Render(job.template, job.data)
			if err != nil {
				log.Error().Err(err).Str("template", job.template).Msg("failed to render mail")
				metrics.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
				continue
			}
			err = f.sender.Send(ctx, mail.Message{From: f.from, To: job.to, Subject: job.subject, HTML: html})
			if err != nil {
				log.Warn().Err(err).Str("reference", ref).Str("template", job.template).Msg("failed to send mail")
				metrics.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
				continue
			}
			metrics.NotificationsTotal.WithLabelValues(kind, "sent").Inc()
		}
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
