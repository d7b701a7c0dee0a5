package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"stock-alerting/internal/logger"
	"stock-alerting/internal/metrics"
	"stock-alerting/internal/models"
)

// Store is the persistence the notifier depends on
type Store interface {
	GetTriggeredAlertByID(id int) (*models.TriggeredAlert, error)
	GetUserForAlert(alertID int) (*models.User, error)
	MarkEmailSent(triggeredAlertID int) error
	SetNotificationError(triggeredAlertID int, message string) error
}

// Sender delivers a rendered message
type Sender interface {
	Send(to, subject, body string) error
}

// Notifier turns trigger events into email notifications. It implements
// kafka.TriggerHandler and is idempotent: a redelivered event whose email
// is already recorded as sent is skipped.
type Notifier struct {
	store  Store
	sender Sender
}

// New creates a notifier
func New(store Store, sender Sender) *Notifier {
	return &Notifier{store: store, sender: sender}
}

// HandleTrigger delivers the notification for one trigger event
func (n *Notifier) HandleTrigger(ctx context.Context, ev *models.TriggerEvent) error {
	log := logger.WithComponent("notifier").With().
		Int("triggered_alert_id", ev.TriggeredAlertID).Logger()

	triggered, err := n.store.GetTriggeredAlertByID(ev.TriggeredAlertID)
	if err != nil {
		return fmt.Errorf("failed to load triggered alert: %w", err)
	}
	if triggered.EmailSent {
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	user, err := n.store.GetUserForAlert(triggered.AlertID)
	if err != nil {
		return fmt.Errorf("failed to load alert owner: %w", err)
	}
	if user.Email == "" {
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		log.Warn().Str("username", user.Username).Msg("no email address, skipping notification")
		return nil
	}

	subject, body, err := render(user, triggered, ev)
	if err != nil {
		return fmt.Errorf("failed to render notification: %w", err)
	}

	if err := n.sender.Send(user.Email, subject, body); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		if dbErr := n.store.SetNotificationError(triggered.ID, err.Error()); dbErr != nil {
			log.Error().Err(dbErr).Msg("failed to record notification error")
		}
		return fmt.Errorf("failed to send notification: %w", err)
	}

	if err := n.store.MarkEmailSent(triggered.ID); err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	log.Info().Str("recipient", user.Email).Msg("notification sent")
	return nil
}

var (
	thresholdSubject = template.Must(template.New("threshold_subject").Parse(
		"Stock Alert: {{.Symbol}} {{.Condition}} ${{.Threshold}}"))
	durationSubject = template.Must(template.New("duration_subject").Parse(
		"Stock Alert: {{.Symbol}} {{.Condition}} ${{.Threshold}} for {{.DurationMinutes}} minutes"))

	thresholdBody = template.Must(template.New("threshold_body").Parse(`Hello {{.Name}},

Your stock alert has been triggered!

Stock: {{.Symbol}} ({{.StockName}})
Alert: Price {{.Condition}} ${{.Threshold}}
Current Price: ${{.TriggerPrice}}
Triggered At: {{.TriggeredAt}}

This is an automated message from Stock Price Alerting System.
`))
	durationBody = template.Must(template.New("duration_body").Parse(`Hello {{.Name}},

Your duration stock alert has been triggered!

Stock: {{.Symbol}} ({{.StockName}})
Alert: Price {{.Condition}} ${{.Threshold}} for {{.DurationMinutes}} minutes
Current Price: ${{.TriggerPrice}}
Triggered At: {{.TriggeredAt}}

This is an automated message from Stock Price Alerting System.
`))
)

type templateData struct {
	Name            string
	Symbol          string
	StockName       string
	Condition       string
	Threshold       string
	TriggerPrice    string
	TriggeredAt     string
	DurationMinutes int
}

func render(user *models.User, triggered *models.TriggeredAlert, ev *models.TriggerEvent) (string, string, error) {
	name := user.FirstName
	if name == "" {
		name = user.Username
	}

	data := templateData{
		Name:         name,
		Symbol:       triggered.StockSymbol,
		StockName:    triggered.StockName,
		Condition:    triggered.Condition,
		Threshold:    triggered.ThresholdPrice.StringFixed(2),
		TriggerPrice: triggered.TriggerPrice.StringFixed(2),
		TriggeredAt:  triggered.TriggeredAt.Format("2006-01-02 15:04:05 MST"),
	}

	subjectTmpl, bodyTmpl := thresholdSubject, thresholdBody
	if triggered.AlertType == models.AlertTypeDuration {
		subjectTmpl, bodyTmpl = durationSubject, durationBody
		// Duration is not stored on the triggered record; the event carries
		// the alert definition at trigger time.
		data.DurationMinutes = durationFromEvent(ev)
	}

	var subject, body bytes.Buffer
	if err := subjectTmpl.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := bodyTmpl.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}

func durationFromEvent(ev *models.TriggerEvent) int {
	if ev == nil {
		return 0
	}
	return ev.DurationMinutes
}
