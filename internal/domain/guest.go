package domain

import (
	"fmt"
	"strings"
)

// Guest is one bulk-send recipient. The phone may arrive under any of three
// keys depending on who produced the list.
type Guest struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	GuestName   string `json:"guestName,omitempty" yaml:"guestName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty" yaml:"phoneNumber,omitempty"`
	Phone       string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Number      string `json:"number,omitempty" yaml:"number,omitempty"`
}

// RawPhone returns the first non-empty phone field.
func (g Guest) RawPhone() string {
	switch {
	case g.PhoneNumber != "":
		return g.PhoneNumber
	case g.Phone != "":
		return g.Phone
	default:
		return g.Number
	}
}

// Label identifies the guest in result lists: name, then phone, then a
// positional placeholder (i is zero-based).
func (g Guest) Label(i int) string {
	if g.Name != "" {
		return g.Name
	}
	if p := g.RawPhone(); p != "" {
		return p
	}
	return fmt.Sprintf("Guest %d", i+1)
}

// Personalize substitutes {name} and {guestName} placeholders in template.
func (g Guest) Personalize(template string) string {
	msg := template
	if g.Name != "" {
		msg = strings.ReplaceAll(msg, "{name}", g.Name)
	}
	if g.GuestName != "" {
		msg = strings.ReplaceAll(msg, "{guestName}", g.GuestName)
	}
	return msg
}
