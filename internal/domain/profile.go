package domain

import (
	"fmt"
	"time"
)

// PaymentCard stored payment method. Only the masked form is kept.
type PaymentCard struct {
	Last4       string `json:"last4"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	HolderName  string `json:"holderName"`
}

// Masked returns the card number as it is shown to the user.
func (c PaymentCard) Masked() string {
	return "**** **** **** " + c.Last4
}

// Expiry returns the expiry in MM/YY form.
func (c PaymentCard) Expiry() string {
	return fmt.Sprintf("%02d/%02d", c.ExpiryMonth, c.ExpiryYear%100)
}

// Profile local user identity. Email is the unique key.
type Profile struct {
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	PinHash   string        `json:"pinHash"`
	Cards     []PaymentCard `json:"storedCards"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Clone returns a copy that shares no slices with p.
func (p Profile) Clone() Profile {
	cards := make([]PaymentCard, len(p.Cards))
	copy(cards, p.Cards)
	p.Cards = cards
	return p
}

// Registry all known profiles plus the active one.
type Registry struct {
	Profiles map[string]Profile `json:"profiles"`
	// Active email of the active profile, empty when nobody is signed in.
	Active string `json:"active,omitempty"`
}

// NewRegistry returns an empty registry.
func NewRegistry() Registry {
	return Registry{Profiles: make(map[string]Profile)}
}

// Clone returns a deep copy.
func (r Registry) Clone() Registry {
	out := Registry{Profiles: make(map[string]Profile, len(r.Profiles)), Active: r.Active}
	for k, v := range r.Profiles {
		out.Profiles[k] = v.Clone()
	}
	return out
}
