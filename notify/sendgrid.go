package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/studio/leave-engine/leave"
)

// SendGrid emails notices through the SendGrid v3 API. Students without an
// email address are skipped.
type SendGrid struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
	loc        *time.Location
	log        zerolog.Logger
}

func NewSendGrid(apiKey, appName, fromEmail string, loc *time.Location, log zerolog.Logger) *SendGrid {
	return &SendGrid{
		client:     sendgrid.NewSendClient(apiKey),
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
		loc:        loc,
		log:        log.With().Str("component", "notify_sendgrid").Logger(),
	}
}

func (s *SendGrid) Notify(ctx context.Context, n leave.Notice) error {
	msg := s.message(n)
	if msg == nil {
		s.log.Debug().Str("request_id", n.Request.ID).Msg("student has no email, skipping notice")
		return nil
	}

	res, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// message returns nil when there is nobody to send to.
func (s *SendGrid) message(n leave.Notice) *sgmail.SGMailV3 {
	if n.Student.Email == "" {
		return nil
	}
	subject, body := Render(n, s.loc)
	to := sgmail.NewEmail(n.Student.FullName, n.Student.Email)
	return sgmail.NewV3MailInit(s.from, s.subjPrefix+subject, to, sgmail.NewContent("text/plain", body))
}
