package delivery

import (
	"context"

	"killwatch/internal/events"
	"killwatch/internal/killerrors"
)

// EmailProvider is a documented gap: the example corpus carries no SMTP
// client, so this provider validates configuration and reports
// KindConfigInvalid on every send rather than fabricating a mail library.
// A real implementation is out of scope until one of the pack's
// dependencies grows an SMTP client.
type EmailProvider struct {
	to string
}

// NewEmailProvider builds an EmailProvider. to is retained only so
// configuration validation has something to check.
func NewEmailProvider(to string) *EmailProvider {
	return &EmailProvider{to: to}
}

func (p *EmailProvider) Name() string { return "email" }

func (p *EmailProvider) Send(ctx context.Context, profile string, d events.Decision) error {
	if p.to == "" {
		return killerrors.New(killerrors.KindConfigInvalid, "email.Send", errEmailNotConfigured)
	}
	return killerrors.New(killerrors.KindConfigInvalid, "email.Send", errEmailUnimplemented)
}

var (
	errEmailNotConfigured = configError("email provider has no recipient configured")
	errEmailUnimplemented = configError("email delivery is not implemented, no SMTP client in the dependency set")
)

type configError string

func (e configError) Error() string { return string(e) }
