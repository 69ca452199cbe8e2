// Package model defines the data structures used throughout the application.
package model

import "sort"

// SpeciesType is one entry of the static species catalog. The intervals are
// copied onto a plant when it is created and never re-read afterwards, so
// changing the catalog only affects new plants.
type SpeciesType struct {
	Key               string `json:"key"`
	Name              string `json:"name"`
	Icon              string `json:"icon"`
	WaterIntervalDays int    `json:"waterIntervalDays"`
	SunIntervalHours  int    `json:"sunIntervalHours"`
}

// catalog is read-only after package init. Nothing in the program mutates it,
// and Lookup hands out copies.
var catalog = map[string]SpeciesType{
	"suculenta": {Key: "suculenta", Name: "Suculenta", Icon: "🌵", WaterIntervalDays: 7, SunIntervalHours: 4},
	"samambaia": {Key: "samambaia", Name: "Samambaia", Icon: "🌿", WaterIntervalDays: 2, SunIntervalHours: 2},
	"cacto":     {Key: "cacto", Name: "Cacto", Icon: "🌵", WaterIntervalDays: 10, SunIntervalHours: 6},
	"orquidea":  {Key: "orquidea", Name: "Orquídea", Icon: "🌸", WaterIntervalDays: 3, SunIntervalHours: 3},
	"violeta":   {Key: "violeta", Name: "Violeta", Icon: "🌺", WaterIntervalDays: 2, SunIntervalHours: 4},
	"jiboia":    {Key: "jiboia", Name: "Jiboia", Icon: "🍃", WaterIntervalDays: 3, SunIntervalHours: 2},
}

// DefaultSpeciesKey is preselected in the "add plant" form.
const DefaultSpeciesKey = "suculenta"

// LookupSpecies returns the catalog entry for key.
func LookupSpecies(key string) (SpeciesType, bool) {
	st, ok := catalog[key]
	return st, ok
}

// SpeciesKeys returns every catalog key in sorted order.
func SpeciesKeys() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AllSpecies returns the catalog sorted by key.
func AllSpecies() []SpeciesType {
	out := make([]SpeciesType, 0, len(catalog))
	for _, k := range SpeciesKeys() {
		out = append(out, catalog[k])
	}
	return out
}
