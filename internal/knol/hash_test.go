package knol

import (
	"testing"

	"github.com/conorfennell/lexideck/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Type:    domain.Grammar,
		Front:   "  Pretérito vs Imperfecto \r\n",
		Back:    "Completed vs ongoing.",
		Context: "Past tenses",
	}
	expected := "grammar\npretérito vs imperfecto\ncompleted vs ongoing.\npast tenses"
	normalized := Normalize(card)

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		card := domain.Card{
			Type:    domain.Vocabulary,
			Front:   "Q",
			Back:    "A",
			Context: "C",
		}
		// Hash for "vocabulary\nq\na\nc"
		expectedHash := "b28a25d412925858734f2347ae2b020efe079b5c138364ee0104afa1940ab4c1"
		hash := Hash(card)

		if hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		card1 := domain.Card{Type: domain.Vocabulary, Front: "gato"}
		card2 := domain.Card{Type: domain.Vocabulary, Front: "gato"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes for identical cards to be the same")
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		card1 := domain.Card{Type: domain.Vocabulary, Front: "  el gato ", Back: "the cat"}
		card2 := domain.Card{Type: domain.Vocabulary, Front: "El Gato", Back: "the cat"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("type is part of the identity", func(t *testing.T) {
		card1 := domain.Card{Type: domain.Vocabulary, Front: "ser", Back: "to be"}
		card2 := domain.Card{Type: domain.Grammar, Front: "ser", Back: "to be"}
		if Hash(card1) == Hash(card2) {
			t.Error("Expected cards of different types to hash differently")
		}
	})

	t.Run("attributes do not change the hash", func(t *testing.T) {
		card1 := domain.Card{Type: domain.Vocabulary, Front: "perro", Attributes: map[string]string{"level": "A1"}}
		card2 := domain.Card{Type: domain.Vocabulary, Front: "perro", Attributes: map[string]string{"level": "A2"}}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected attributes to be ignored by the hash")
		}
	})
}
