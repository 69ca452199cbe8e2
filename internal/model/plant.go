package model

import "time"

// Plant is a single plant owned by an account.
//
// Due-time invariants, maintained by the care package:
//
//	NextWaterDue = LastWatered + WaterIntervalDays * 24h
//	NextSunDue   = LastSunned  + SunIntervalHours  * 1h
//
// Type, WaterIntervalDays and SunIntervalHours are fixed at creation.
// TotalSunHours only ever grows.
//
// Timestamps are serialized as RFC 3339 by encoding/json, which is also the
// format stored in both persistence backends.
type Plant struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"accountId"`
	Type              string    `json:"type"`
	TypeName          string    `json:"typeName"`
	Icon              string    `json:"icon"`
	Species           string    `json:"species,omitempty"`
	Nickname          string    `json:"nickname"`
	Photo             string    `json:"photo,omitempty"` // data URL or http(s) URL
	WaterIntervalDays int       `json:"waterIntervalDays"`
	SunIntervalHours  int       `json:"sunIntervalHours"`
	NextWaterDue      time.Time `json:"nextWaterDue"`
	NextSunDue        time.Time `json:"nextSunDue"`
	LastWatered       time.Time `json:"lastWatered"`
	LastSunned        time.Time `json:"lastSunned"`
	TotalSunHours     float64   `json:"totalSunHours"`
	CreatedAt         time.Time `json:"createdAt"`
}

// NewPlantInput is what the "add plant" form submits.
type NewPlantInput struct {
	Type     string `json:"type"`
	Species  string `json:"species"`
	Nickname string `json:"nickname"`
	Photo    string `json:"photo"`
}

// ClonePlants returns a copy of the slice so callers can hand out collections
// without sharing the backing array. Plant has no reference fields, so a
// shallow copy of each element is a full copy.
func ClonePlants(plants []Plant) []Plant {
	out := make([]Plant, len(plants))
	copy(out, plants)
	return out
}

// FindPlant returns the index of the plant with the given id, or -1.
func FindPlant(plants []Plant, id string) int {
	for i := range plants {
		if plants[i].ID == id {
			return i
		}
	}
	return -1
}

// PlantDocument is the durable unit of the remote store: one per account,
// always written whole.
type PlantDocument struct {
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	Plants    []Plant   `json:"plants"`
	UpdatedAt time.Time `json:"updatedAt"`
}
