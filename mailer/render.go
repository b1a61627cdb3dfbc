// Package mailer delivers the transactional emails the auth core asks for.
package mailer

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"sync"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-secure-auth"
)

//go:embed templates/*.django
var templatesFS embed.FS

// DefaultSubjects maps each email kind to its subject line.
var DefaultSubjects = map[auth.EmailKind]string{
	auth.EmailRegister:       "Verify your email",
	auth.EmailForgotPassword: "Reset your password",
	auth.EmailVerified:       "Your email has been verified",
}

// Rendered is a message ready for a transport.
type Rendered struct {
	To      string
	Subject string
	HTML    string
}

// Renderer turns an auth.Email into HTML using django templates named
// after the email kind.
type Renderer struct {
	engine   *django.Engine
	subjects map[auth.EmailKind]string
	product  string
	once     sync.Once
	loadErr  error
}

// NewRenderer uses the embedded templates.
func NewRenderer(product string) *Renderer {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		// the embed pattern guarantees the directory
		panic(err)
	}
	return NewRendererFS(sub, product)
}

// NewRendererFS loads templates from fsys, which holds one <kind>.django
// file per email kind plus layout.django.
func NewRendererFS(fsys fs.FS, product string) *Renderer {
	subjects := make(map[auth.EmailKind]string, len(DefaultSubjects))
	for k, v := range DefaultSubjects {
		subjects[k] = v
	}

	return &Renderer{
		engine:   django.NewFileSystem(http.FS(fsys), ".django"),
		subjects: subjects,
		product:  product,
	}
}

// WithSubject overrides the subject for kind.
func (r *Renderer) WithSubject(kind auth.EmailKind, subject string) *Renderer {
	r.subjects[kind] = subject
	return r
}

func (r *Renderer) load() error {
	r.once.Do(func() {
		r.loadErr = r.engine.Load()
	})
	return r.loadErr
}

// Render produces the subject and HTML body for email.
func (r *Renderer) Render(email auth.Email) (*Rendered, error) {
	subject, ok := r.subjects[email.Kind]
	if !ok {
		return nil, goerrors.New("unknown email kind", goerrors.CategoryBadInput).
			WithTextCode("UNKNOWN_EMAIL_KIND").
			WithMetadata(map[string]any{"kind": string(email.Kind)})
	}

	if err := r.load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email templates")
	}

	data := make(map[string]any, len(email.Data)+2)
	for k, v := range email.Data {
		data[k] = v
	}
	data["subject"] = subject
	data["product"] = r.product

	var buf bytes.Buffer
	if err := r.engine.Render(&buf, string(email.Kind), data, "layout"); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email").
			WithMetadata(map[string]any{"kind": string(email.Kind)})
	}

	return &Rendered{
		To:      email.To,
		Subject: subject,
		HTML:    buf.String(),
	}, nil
}
