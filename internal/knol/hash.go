// Package knol derives stable card IDs from card content.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/lexideck/internal/domain"
)

// Normalize joins the card's type and cleaned content fields with newlines.
// Attributes are left out so that retagging a card keeps its ID and with it
// the card's review history.
func Normalize(card domain.Card) string {
	clean := func(part string) string {
		p := strings.ReplaceAll(part, "\r\n", "\n")
		return strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join([]string{
		card.Type.String(),
		clean(card.Front),
		clean(card.Back),
		clean(card.Context),
	}, "\n")
}

// Hash returns the hex SHA-256 of the normalized card.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
