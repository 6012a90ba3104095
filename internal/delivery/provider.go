// Package delivery implements the Delivery Router (C9): fan-out of final
// Decisions to pluggable DeliveryProviders, grounded on the same
// rate-limited HTTP idiom the teacher's internal/discord.BotService uses
// for outbound calls, generalized into a provider registry the way
// internal/notifications models per-recipient delivery (minus the Mongo
// read/unread bookkeeping, which this domain doesn't need).
package delivery

import (
	"context"

	"killwatch/internal/events"
)

// Provider is the delivery contract a profile's routes bind to. Send is
// called once per (profile, decision) pair that cleared its tier
// threshold; providers decide internally how to render a Decision.
type Provider interface {
	Name() string
	Send(ctx context.Context, profile string, d events.Decision) error
}

// DigestMember is one decision folded into a batched digest delivery.
type DigestMember struct {
	Decision events.Decision
}
