package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletMetaKey is the meta_info key holding the remote wallet object id.
const WalletMetaKey = "googlepaypass"

type Event struct {
	ID             uuid.UUID
	OrganizerSlug  string
	OrganizerName  string
	Slug           string
	Name           I18n
	Locale         string
	Locales        []string
	Currency       string
	DateFrom       *time.Time
	DateTo         *time.Time
	DateAdmission  *time.Time
	Location       I18n
	GeoLat         *float64
	GeoLon         *float64
	PrimaryColor   string
	HasSeatingPlan bool
	Wallet         WalletSettings
}

// WalletSettings are the per-event ticket output settings.
type WalletSettings struct {
	DataProtectionApproval bool
	ShowDisclaimer         bool
	DisclaimerText         I18n
	LogoURL                string
	HeroURL                string
	Latitude               *float64
	Longitude              *float64
}

type Position struct {
	ID                  uuid.UUID
	PositionNo          int
	OrderCode           string
	OrderSecret         string
	EventID             uuid.UUID
	Secret              string
	AttendeeName        string
	AddonToAttendeeName string
	ItemName            I18n
	VariationName       I18n
	Price               decimal.Decimal
	Seat                string
	MetaInfo            MetaInfo
}

// HolderName is the attendee name, or the name on the parent position for add-ons.
func (p *Position) HolderName() string {
	if p.AttendeeName != "" {
		return p.AttendeeName
	}
	return p.AddonToAttendeeName
}

// MetaInfo is the free-form metadata blob stored on an order position.
type MetaInfo map[string]json.RawMessage

// WalletObjectID returns the stored remote object id, or "" when none was issued.
func (m MetaInfo) WalletObjectID() string {
	raw, ok := m[WalletMetaKey]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}
