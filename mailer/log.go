package mailer

import (
	"context"

	auth "github.com/goliatone/go-secure-auth"
)

// LogMailer renders emails and writes them to the logger instead of
// sending them. Used when no SMTP host is configured.
type LogMailer struct {
	renderer *Renderer
	logger   auth.Logger
}

var _ auth.Mailer = (*LogMailer)(nil)

func NewLogMailer(renderer *Renderer, logger auth.Logger) *LogMailer {
	return &LogMailer{renderer: renderer, logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email auth.Email) error {
	msg, err := m.renderer.Render(email)
	if err != nil {
		return err
	}

	m.logger.Info("email",
		"kind", string(email.Kind),
		"to", msg.To,
		"subject", msg.Subject,
		"bytes", len(msg.HTML),
	)
	m.logger.Debug("email body", "kind", string(email.Kind), "html", msg.HTML)

	return nil
}
