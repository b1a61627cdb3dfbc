package mailer

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"

	auth "github.com/goliatone/go-secure-auth"
)

// SMTPOptions configure the SMTP transport.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// Sender delivers built messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends rendered emails through an SMTP relay.
type SMTPMailer struct {
	mu       sync.Mutex
	sender   Sender
	from     string
	renderer *Renderer
	logger   auth.Logger
}

var _ auth.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer builds the go-mail client for opts.
func NewSMTPMailer(opts SMTPOptions, renderer *Renderer, logger auth.Logger) (*SMTPMailer, error) {
	policy := mail.TLSOpportunistic
	if opts.TLS {
		policy = mail.TLSMandatory
	}

	clientOpts := []mail.Option{
		mail.WithPort(opts.Port),
		mail.WithTLSPolicy(policy),
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(opts.Username),
			mail.WithPassword(opts.Password),
		)
	}

	client, err := mail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create smtp client").
			WithMetadata(map[string]any{"host": opts.Host, "port": opts.Port})
	}

	return NewSMTPMailerWithSender(client, opts.From, renderer, logger), nil
}

// NewSMTPMailerWithSender uses sender for delivery.
func NewSMTPMailerWithSender(sender Sender, from string, renderer *Renderer, logger auth.Logger) *SMTPMailer {
	return &SMTPMailer{
		sender:   sender,
		from:     from,
		renderer: renderer,
		logger:   logger,
	}
}

// Build renders email into a go-mail message.
func (m *SMTPMailer) Build(email auth.Email) (*mail.Msg, error) {
	rendered, err := m.renderer.Render(email)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sender address")
	}
	if err := msg.To(rendered.To); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient address").
			WithMetadata(map[string]any{"kind": string(email.Kind)})
	}
	msg.Subject(rendered.Subject)
	msg.SetBodyString(mail.TypeTextHTML, rendered.HTML)

	return msg, nil
}

func (m *SMTPMailer) Send(ctx context.Context, email auth.Email) error {
	msg, err := m.Build(email)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithMetadata(map[string]any{"kind": string(email.Kind)})
	}

	m.logger.Info("email sent", "kind", string(email.Kind), "to", email.To)
	return nil
}
