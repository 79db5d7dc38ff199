// Package contact validates and records messages sent through the public
// contact form.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/foliodesk/folio/internal/model"
)

const defaultTimeout = 10 * time.Second

// Confirmation texts shown after a successful submission.
const (
	ConfirmTitle = "Message Sent!"
	ConfirmBody  = "Thank you for reaching out. I'll get back to you soon."
)

// FailedMessage is what a visitor sees when the message could not be stored.
const FailedMessage = "Failed to send message. Please try again."

// Inserter stores contact messages. backend.MessageTable satisfies it.
type Inserter interface {
	Insert(ctx context.Context, m *model.ContactMessage) error
}

// Form holds what the visitor typed. Submit clears it on success only.
type Form struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Message string `json:"message" validate:"required,max=1000"`
}

// Confirmation is returned on success.
type Confirmation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ValidationError names the first field that failed and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// WriteError wraps a store failure. Error returns the visitor-facing text;
// Unwrap exposes the cause for logging.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return FailedMessage }
func (e *WriteError) Unwrap() error { return e.Err }

// Intake validates forms and writes them to the message store.
type Intake struct {
	messages Inserter
	validate *validator.Validate
	timeout  time.Duration
	logger   *slog.Logger
}

// NewIntake creates an Intake. A zero timeout selects 10s.
func NewIntake(messages Inserter, timeout time.Duration, logger *slog.Logger) *Intake {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		messages: messages,
		validate: validator.New(),
		timeout:  timeout,
		logger:   logger,
	}
}

// Submit trims and validates the form, then inserts one unread message.
// Validation failures return *ValidationError without touching the store;
// store failures return *WriteError and leave the form as typed.
func (in *Intake) Submit(ctx context.Context, f *Form) (*Confirmation, error) {
	clean := Form{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Message: strings.TrimSpace(f.Message),
	}
	if err := in.check(&clean); err != nil {
		return nil, err
	}

	msg := &model.ContactMessage{
		Name:    clean.Name,
		Email:   clean.Email,
		Message: clean.Message,
	}

	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()
	if err := in.messages.Insert(ctx, msg); err != nil {
		in.logger.Error("contact message insert failed", "email", clean.Email, "error", err)
		return nil, &WriteError{Err: err}
	}

	in.logger.Info("contact message received", "id", msg.ID, "email", clean.Email)
	*f = Form{}
	return &Confirmation{Title: ConfirmTitle, Description: ConfirmBody}, nil
}

// Validate runs the form rules without writing.
func (in *Intake) Validate(f *Form) error {
	clean := Form{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Message: strings.TrimSpace(f.Message),
	}
	return in.check(&clean)
}

func (in *Intake) check(f *Form) error {
	err := in.validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate contact form: %w", err)
	}
	first := verrs[0]
	return &ValidationError{
		Field:   strings.ToLower(first.Field()),
		Message: ruleMessage(first.Field(), first.Tag()),
	}
}

func ruleMessage(field, tag string) string {
	switch field + "." + tag {
	case "Name.required":
		return "Name is required"
	case "Name.max":
		return "Name must be less than 100 characters"
	case "Email.required", "Email.email":
		return "Invalid email address"
	case "Email.max":
		return "Email must be less than 255 characters"
	case "Message.required":
		return "Message is required"
	case "Message.max":
		return "Message must be less than 1000 characters"
	}
	return field + " is invalid"
}
