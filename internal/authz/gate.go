// Package authz decides whether a WhatsApp sender may talk to the assistant.
package authz

import (
	"context"
	"fmt"
	"strings"
)

// User-facing denial texts. The two rejection outcomes deliberately read
// differently so a sender knows whether to register or to reactivate.
const (
	DenialUnregistered = "Seu número não está cadastrado no assistente. " +
		"Fale com o responsável pela sua associação para solicitar o cadastro."
	DenialInactive = "Seu cadastro está inativo no momento. " +
		"Fale com o responsável pela sua associação para reativá-lo."
)

// Directory looks up a sender in the user registry by digits-only address.
type Directory interface {
	FindBySender(ctx context.Context, digits string) (active bool, found bool, err error)
}

// Gate authorizes senders against a Directory.
type Gate struct {
	dir Directory
}

// NewGate creates a Gate backed by dir.
func NewGate(dir Directory) *Gate {
	return &Gate{dir: dir}
}

// Normalize reduces a sender address (phone number or WhatsApp JID like
// "5511999990000@s.whatsapp.net") to its digits.
func Normalize(address string) string {
	if at := strings.IndexByte(address, '@'); at >= 0 {
		address = address[:at]
	}
	var b strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Authorize reports whether the sender may use the assistant. When ok is
// false, denial carries the user-facing explanation. err is only non-nil for
// infrastructure failures (directory unreachable), never for policy outcomes.
func (g *Gate) Authorize(ctx context.Context, address string) (ok bool, denial string, err error) {
	digits := Normalize(address)
	if digits == "" {
		return false, DenialUnregistered, nil
	}

	active, found, err := g.dir.FindBySender(ctx, digits)
	if err != nil {
		return false, "", fmt.Errorf("looking up sender %s: %w", digits, err)
	}
	if !found {
		return false, DenialUnregistered, nil
	}
	if !active {
		return false, DenialInactive, nil
	}
	return true, "", nil
}
