package domain

import "time"

// Promotion is a time-boxed percentage reduction on a catalog bassin.
// The interval is closed on both ends.
type Promotion struct {
	ID            int64     `json:"id"`
	TauxReduction float64   `json:"tauxReduction"`
	DateDebut     time.Time `json:"dateDebut"`
	DateFin       time.Time `json:"dateFin"`
}

// ActiveAt reports whether the promotion window covers now.
func (p Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.DateDebut) && !now.After(p.DateFin)
}
