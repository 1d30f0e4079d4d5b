// Package parser extracts cards from markdown deck files.
//
// A card starts with a "Q:" line and may carry "A:" (back) and "C:" (context)
// blocks, each of which may span several lines. "T: grammar" sets the card
// type and "@level: A1" sets an attribute. Outside a card both apply to
// every card that follows in the file. A line containing only "---" ends the
// current card.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"github.com/conorfennell/lexideck/internal/domain"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
	typePrefix    = "T:"
	attrPrefix    = "@"
	separator     = "---"
)

// DefaultType is used for cards in files that never name a type.
const DefaultType = domain.Vocabulary

type field int

const (
	seeking field = iota
	readingFront
	readingBack
	readingContext
)

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cards, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cards, nil
}

// Parse reads from an io.Reader and extracts all cards. Returned cards have
// no ID and no scheduling state yet.
func Parse(r io.Reader) ([]domain.Card, error) {
	p := &parser{fileType: DefaultType}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line++
		if err := p.handle(scanner.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finishCard()
	return p.cards, nil
}

type parser struct {
	cards []domain.Card

	fileType  domain.CardType
	fileAttrs map[string]string

	card  *domain.Card
	state field
	block []string
	line  int
}

func (p *parser) handle(line string) error {
	switch {
	case strings.TrimSpace(line) == separator:
		p.finishCard()
	case strings.HasPrefix(line, frontPrefix):
		p.finishCard()
		p.card = &domain.Card{Type: p.fileType, Attributes: maps.Clone(p.fileAttrs)}
		p.start(readingFront, line[len(frontPrefix):])
	case strings.HasPrefix(line, backPrefix) && p.card != nil:
		p.start(readingBack, line[len(backPrefix):])
	case strings.HasPrefix(line, contextPrefix) && p.card != nil:
		p.start(readingContext, line[len(contextPrefix):])
	case strings.HasPrefix(line, typePrefix):
		t, err := domain.ParseCardType(strings.ToLower(strings.TrimSpace(line[len(typePrefix):])))
		if err != nil {
			return err
		}
		if p.card != nil {
			p.card.Type = t
		} else {
			p.fileType = t
		}
	case strings.HasPrefix(line, attrPrefix):
		key, value, ok := strings.Cut(line[len(attrPrefix):], ":")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return fmt.Errorf("malformed attribute %q", line)
		}
		p.setAttr(key, strings.TrimSpace(value))
	case p.state != seeking:
		p.block = append(p.block, line)
	}
	return nil
}

func (p *parser) start(f field, rest string) {
	p.flush()
	p.state = f
	p.block = append(p.block, strings.TrimPrefix(rest, " "))
}

func (p *parser) setAttr(key, value string) {
	if p.card == nil {
		if p.fileAttrs == nil {
			p.fileAttrs = make(map[string]string)
		}
		p.fileAttrs[key] = value
		return
	}
	if p.card.Attributes == nil {
		p.card.Attributes = make(map[string]string)
	}
	p.card.Attributes[key] = value
}

// flush stores the lines read so far in the field being read.
func (p *parser) flush() {
	if p.card == nil || len(p.block) == 0 {
		p.block = nil
		return
	}
	content := strings.TrimSpace(strings.Join(p.block, "\n"))
	switch p.state {
	case readingFront:
		p.card.Front = content
	case readingBack:
		p.card.Back = content
	case readingContext:
		p.card.Context = content
	}
	p.block = nil
}

func (p *parser) finishCard() {
	p.flush()
	if p.card != nil && p.card.Front != "" {
		p.cards = append(p.cards, *p.card)
	}
	p.card = nil
	p.state = seeking
}
