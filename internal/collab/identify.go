package collab

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sakif/pluk/internal/apperror"
)

// DefaultIdentifyDelay mimics the time a real recognition service takes.
const DefaultIdentifyDelay = 2 * time.Second

type Identification struct {
	TypeKey    string  `json:"type"`
	Species    string  `json:"species"`
	Confidence float64 `json:"confidence"`
}

// StubIdentifier pretends to recognise a photo by picking one of a fixed set
// of answers after a delay. It exists so the "identify" flow has something
// to call until a real recognition service is plugged in.
type StubIdentifier struct {
	delay   time.Duration
	answers []Identification
	pick    func(n int) int
}

var _ SpeciesIdentifier = (*StubIdentifier)(nil)

var stubAnswers = []Identification{
	{TypeKey: "suculenta", Species: "Echeveria elegans", Confidence: 0.92},
	{TypeKey: "samambaia", Species: "Nephrolepis exaltata", Confidence: 0.88},
	{TypeKey: "cacto", Species: "Mammillaria elongata", Confidence: 0.90},
	{TypeKey: "orquidea", Species: "Phalaenopsis amabilis", Confidence: 0.85},
	{TypeKey: "violeta", Species: "Saintpaulia ionantha", Confidence: 0.87},
	{TypeKey: "jiboia", Species: "Epipremnum aureum", Confidence: 0.94},
}

// NewStubIdentifier uses DefaultIdentifyDelay when delay is negative. A zero
// delay answers immediately.
func NewStubIdentifier(delay time.Duration) *StubIdentifier {
	if delay < 0 {
		delay = DefaultIdentifyDelay
	}
	return &StubIdentifier{delay: delay, answers: stubAnswers, pick: rand.IntN}
}

func (s *StubIdentifier) Identify(ctx context.Context, photo string) (Identification, error) {
	if photo == "" {
		return Identification{}, apperror.ValidationFailed("photo", "choose a photo to identify")
	}

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Identification{}, ctx.Err()
		}
	}

	return s.answers[s.pick(len(s.answers))], nil
}
