package queue

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/lexideck/internal/domain"
)

// ratioTolerance is how far the interleave ratios may sum away from 1.0.
const ratioTolerance = 0.05

// Settings controls how many new cards are introduced and how card types are
// mixed.
type Settings struct {
	NewCardsPerDay  int                         `json:"new_cards_per_day" validate:"gt=0"`
	InterleaveRatio map[domain.CardType]float64 `json:"interleave_ratio" validate:"required,dive,gte=0,lte=1"`
}

// NewCardLimit is round(NewCardsPerDay * ratio[t]).
func (s Settings) NewCardLimit(t domain.CardType) int {
	return int(math.Round(float64(s.NewCardsPerDay) * s.InterleaveRatio[t]))
}

// ValidationError reports malformed filters or settings passed to Build.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var (
	errRatioSum    = errors.New("interleave ratios must sum to 1.0")
	errUnknownType = errors.New("unknown card type")
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		s := sl.Current().Interface().(Settings)
		var sum float64
		for t, r := range s.InterleaveRatio {
			if !t.IsValid() {
				sl.ReportError(s.InterleaveRatio, "InterleaveRatio", "InterleaveRatio", "cardtype", t.String())
				return
			}
			sum += r
		}
		if math.Abs(sum-1) > ratioTolerance {
			sl.ReportError(s.InterleaveRatio, "InterleaveRatio", "InterleaveRatio", "ratiosum", fmt.Sprintf("%.2f", sum))
		}
	}, Settings{})
	return v
}

func validate(v *validator.Validate, f Filters, s Settings) error {
	for t := range f.CardTypes {
		if !t.IsValid() {
			return &ValidationError{Field: "filters", Err: fmt.Errorf("%w: %d", errUnknownType, int(t))}
		}
	}
	for t := range f.Attributes {
		if !t.IsValid() {
			return &ValidationError{Field: "filters", Err: fmt.Errorf("%w: %d", errUnknownType, int(t))}
		}
	}
	if err := v.Struct(f); err != nil {
		return &ValidationError{Field: "filters", Err: err}
	}
	if err := v.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "ratiosum" {
					return &ValidationError{Field: "settings", Err: fmt.Errorf("%w, got %s", errRatioSum, fe.Param())}
				}
			}
		}
		return &ValidationError{Field: "settings", Err: err}
	}
	return nil
}
