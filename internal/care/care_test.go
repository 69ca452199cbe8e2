package care

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/model"
)

// t0 is a fixed instant so every test is deterministic.
var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestPlant(t *testing.T, typeKey string) model.Plant {
	t.Helper()
	p, err := CreatePlant("a@x.com", model.NewPlantInput{Type: typeKey, Nickname: "Spike"}, t0)
	require.NoError(t, err)
	return p
}

// =========================================================================
// CreatePlant TESTS
// =========================================================================

func TestCreatePlant_IntervalsForEveryCatalogEntry(t *testing.T) {
	for _, key := range model.SpeciesKeys() {
		t.Run(key, func(t *testing.T) {
			st, _ := model.LookupSpecies(key)
			p := newTestPlant(t, key)

			assert.Equal(t, time.Duration(st.WaterIntervalDays)*86400*time.Second, p.NextWaterDue.Sub(p.LastWatered))
			assert.Equal(t, time.Duration(st.SunIntervalHours)*3600*time.Second, p.NextSunDue.Sub(p.LastSunned))
			assert.Equal(t, st.WaterIntervalDays, p.WaterIntervalDays)
			assert.Equal(t, st.SunIntervalHours, p.SunIntervalHours)
			assert.Equal(t, st.Name, p.TypeName)
			assert.Equal(t, st.Icon, p.Icon)
			assert.Zero(t, p.TotalSunHours)
			assert.True(t, p.LastWatered.Equal(t0))
			assert.True(t, p.LastSunned.Equal(t0))
		})
	}
}

func TestCreatePlant_AssignsUniqueIDs(t *testing.T) {
	a := newTestPlant(t, "cacto")
	b := newTestPlant(t, "cacto")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "a@x.com", a.AccountID)
}

func TestCreatePlant_TrimsFields(t *testing.T) {
	p, err := CreatePlant("a@x.com", model.NewPlantInput{
		Type:     "violeta",
		Species:  "  Saintpaulia  ",
		Nickname: "  Vivi  ",
	}, t0)
	require.NoError(t, err)

	assert.Equal(t, "Vivi", p.Nickname)
	assert.Equal(t, "Saintpaulia", p.Species)
}

func TestCreatePlant_AcceptedPhotos(t *testing.T) {
	tests := []struct {
		name  string
		photo string
	}{
		{"no photo", ""},
		{"inline png", "data:image/png;base64,iVBORw0KGgo="},
		{"https link", "https://cdn.example.com/plants/lia.jpg"},
		{"http link", "http://example.com/a.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CreatePlant("a@x.com", model.NewPlantInput{Type: "cacto", Nickname: "Bob", Photo: tt.photo}, t0)
			require.NoError(t, err)
			assert.Equal(t, tt.photo, p.Photo)
		})
	}
}

func TestCreatePlant_LongNicknameAccepted(t *testing.T) {
	long := strings.Repeat("Jiboia-da-varanda ", 10)
	p, err := CreatePlant("a@x.com", model.NewPlantInput{Type: "jiboia", Nickname: long}, t0)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long), p.Nickname)
}

func TestNormalize(t *testing.T) {
	sp := time.FixedZone("BRT", -3*60*60)
	now := time.Now().In(sp)

	got := Normalize(now)

	assert.True(t, got.Equal(now))
	assert.Equal(t, time.UTC, got.Location())

	raw, err := got.MarshalJSON()
	require.NoError(t, err)
	var back time.Time
	require.NoError(t, back.UnmarshalJSON(raw))
	assert.Equal(t, got, back)
}

func TestCreatePlant_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		input   model.NewPlantInput
		wantErr error
		field   string
	}{
		{"empty nickname", model.NewPlantInput{Type: "cacto"}, apperror.ErrValidation, "nickname"},
		{"whitespace nickname", model.NewPlantInput{Type: "cacto", Nickname: "   "}, apperror.ErrValidation, "nickname"},
		{"unknown type", model.NewPlantInput{Type: "bonsai", Nickname: "Bob"}, apperror.ErrUnknownSpecies, "type"},
		{"empty type", model.NewPlantInput{Nickname: "Bob"}, apperror.ErrUnknownSpecies, "type"},
		{"photo is plain text", model.NewPlantInput{Type: "cacto", Nickname: "Bob", Photo: "my cactus"}, apperror.ErrValidation, "photo"},
		{"photo is a file path", model.NewPlantInput{Type: "cacto", Nickname: "Bob", Photo: "/tmp/cactus.png"}, apperror.ErrValidation, "photo"},
		{"photo has ftp scheme", model.NewPlantInput{Type: "cacto", Nickname: "Bob", Photo: "ftp://x.com/a.png"}, apperror.ErrValidation, "photo"},
		{"photo data url is not an image", model.NewPlantInput{Type: "cacto", Nickname: "Bob", Photo: "data:text/plain;base64,AAAA"}, apperror.ErrValidation, "photo"},
		{"photo link without host", model.NewPlantInput{Type: "cacto", Nickname: "Bob", Photo: "https:///a.png"}, apperror.ErrValidation, "photo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreatePlant("a@x.com", tt.input, t0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

// =========================================================================
// ScheduleWater / ScheduleSun TESTS
// =========================================================================

func TestScheduleWater_SucculentScenario(t *testing.T) {
	p := newTestPlant(t, "suculenta")
	sunBefore := p.NextSunDue

	watered := ScheduleWater(p, t0.Add(3*Day))

	assert.True(t, watered.NextWaterDue.Equal(t0.Add(10*Day)), "nextWaterDue = %v", watered.NextWaterDue)
	assert.True(t, watered.LastWatered.Equal(t0.Add(3*Day)))
	assert.True(t, watered.NextSunDue.Equal(sunBefore))
}

func TestScheduleWater_LeavesSunFieldsAlone(t *testing.T) {
	p := newTestPlant(t, "orquidea")
	p.TotalSunHours = 12.5

	watered := ScheduleWater(p, t0.Add(90*time.Minute))

	assert.Equal(t, p.TotalSunHours, watered.TotalSunHours)
	assert.Equal(t, p.NextSunDue, watered.NextSunDue)
	assert.Equal(t, p.LastSunned, watered.LastSunned)
}

func TestScheduleSun_AdvancesOnlySun(t *testing.T) {
	p := newTestPlant(t, "cacto")
	now := t0.Add(5 * Hour)

	sunned, err := ScheduleSun(p, 2.5, now)
	require.NoError(t, err)

	assert.True(t, sunned.NextSunDue.Equal(now.Add(6*Hour)))
	assert.True(t, sunned.LastSunned.Equal(now))
	assert.Equal(t, 2.5, sunned.TotalSunHours)
	assert.Equal(t, p.NextWaterDue, sunned.NextWaterDue)
	assert.Equal(t, p.LastWatered, sunned.LastWatered)

	again, err := ScheduleSun(sunned, 1, now.Add(Hour))
	require.NoError(t, err)
	assert.Equal(t, 3.5, again.TotalSunHours)
}

func TestScheduleSun_RejectsInvalidHours(t *testing.T) {
	cases := []struct {
		name  string
		hours float64
	}{
		{"negative", -1},
		{"zero", 0},
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPlant(t, "jiboia")
			p.TotalSunHours = 4

			got, err := ScheduleSun(p, tc.hours, t0.Add(Hour))

			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, p, got, "plant must be unchanged")
			assert.Equal(t, 4.0, got.TotalSunHours)
		})
	}
}

func TestParseSunHours(t *testing.T) {
	cases := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"2", 2, false},
		{" 1.5 ", 1.5, false},
		{"2,5", 2.5, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
		{"0", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseSunHours(tc.raw)
			if tc.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// =========================================================================
// TimeRemaining TESTS
// =========================================================================

func TestTimeRemaining(t *testing.T) {
	due := t0.Add(3*Day + 4*Hour + 30*time.Minute)

	cases := []struct {
		name string
		now  time.Time
		want string
	}{
		{"days and hours", t0, "3d 4h"},
		{"hours only", due.Add(-5*Hour - 10*time.Minute), "5h"},
		{"under an hour", due.Add(-59 * time.Minute), "0h"},
		{"exactly one day", due.Add(-Day), "1d 0h"},
		{"exactly due", due, NowLabel},
		{"overdue", due.Add(Hour), NowLabel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TimeRemaining(due, tc.now).String())
		})
	}
}

func TestTimeRemaining_MonotonicInNow(t *testing.T) {
	due := t0.Add(2*Day + 7*Hour)
	prev := TimeRemaining(due, t0.Add(-time.Hour)).Duration()

	for step := time.Duration(0); step <= 3*Day; step += 17 * time.Minute {
		now := t0.Add(step)
		r := TimeRemaining(due, now)

		assert.LessOrEqual(t, r.Duration(), prev, "now=%v", now)
		if !now.Before(due) {
			assert.True(t, r.Overdue, "now=%v must be the sentinel", now)
		}
		prev = r.Duration()
	}
}
