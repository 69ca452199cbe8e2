// Package care implements the care scheduler: creating plants and rolling
// their watering and sunlight due-times forward.
//
// Every function here is pure. The current time is always passed in as `now`
// so tests can pin it, and plants are taken and returned by value so a failed
// call can never leave a half-updated record behind.
package care

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/model"
)

const (
	Day  = 24 * time.Hour
	Hour = time.Hour

	MaxSpeciesLength = 100
)

// Normalize drops the monotonic clock reading and the location from t, so it
// compares equal to the same instant after a JSON or sqlite round trip.
func Normalize(t time.Time) time.Time {
	return t.UTC().Round(0)
}

// CreatePlant builds a new plant from the "add plant" form.
//
// The intervals, display name and icon are copied from the species catalog so
// the plant stays self-describing even if the catalog changes later. Both due
// times are offset from now, and both last-care timestamps are now.
func CreatePlant(accountID string, in model.NewPlantInput, now time.Time) (model.Plant, error) {
	nickname := strings.TrimSpace(in.Nickname)
	if nickname == "" {
		return model.Plant{}, apperror.ValidationFailed("nickname", "give your plant a nickname")
	}

	species := strings.TrimSpace(in.Species)
	if len([]rune(species)) > MaxSpeciesLength {
		return model.Plant{}, apperror.ValidationFailed("species", "species name is too long")
	}

	st, ok := model.LookupSpecies(in.Type)
	if !ok {
		return model.Plant{}, apperror.UnknownSpeciesType(in.Type)
	}

	photo := strings.TrimSpace(in.Photo)
	if !validPhoto(photo) {
		return model.Plant{}, apperror.ValidationFailed("photo", "photo must be an image or an http(s) link")
	}

	return model.Plant{
		ID:                xid.New().String(),
		AccountID:         accountID,
		Type:              st.Key,
		TypeName:          st.Name,
		Icon:              st.Icon,
		Species:           species,
		Nickname:          nickname,
		Photo:             photo,
		WaterIntervalDays: st.WaterIntervalDays,
		SunIntervalHours:  st.SunIntervalHours,
		NextWaterDue:      now.Add(time.Duration(st.WaterIntervalDays) * Day),
		NextSunDue:        now.Add(time.Duration(st.SunIntervalHours) * Hour),
		LastWatered:       now,
		LastSunned:        now,
		TotalSunHours:     0,
		CreatedAt:         now,
	}, nil
}

// validPhoto accepts no photo, an inline image data URL or an absolute
// http(s) link.
func validPhoto(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "data:image/") {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ScheduleWater records a watering at now. Only NextWaterDue and LastWatered
// change.
func ScheduleWater(p model.Plant, now time.Time) model.Plant {
	p.LastWatered = now
	p.NextWaterDue = now.Add(time.Duration(p.WaterIntervalDays) * Day)
	return p
}

// ScheduleSun records a sun session of hoursLogged hours at now.
// Only NextSunDue, LastSunned and TotalSunHours change.
//
// hoursLogged must be a finite number greater than zero. On rejection the
// plant is returned exactly as it came in, together with a validation error.
func ScheduleSun(p model.Plant, hoursLogged float64, now time.Time) (model.Plant, error) {
	if err := validateHours(hoursLogged); err != nil {
		return p, err
	}
	p.LastSunned = now
	p.NextSunDue = now.Add(time.Duration(p.SunIntervalHours) * Hour)
	p.TotalSunHours += hoursLogged
	return p, nil
}

// ParseSunHours converts the free-text "hours" field into a value accepted by
// ScheduleSun. Both "2.5" and "2,5" are accepted.
func ParseSunHours(raw string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if s == "" {
		return 0, apperror.ValidationFailed("hours", "enter how many hours of sun the plant got")
	}
	h, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("hours", "hours must be a number")
	}
	if err := validateHours(h); err != nil {
		return 0, err
	}
	return h, nil
}

func validateHours(h float64) error {
	if math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
		return apperror.ValidationFailed("hours", "hours must be greater than zero")
	}
	return nil
}
