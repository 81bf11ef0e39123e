package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID             string            `bson:"_id"`
	Organizer      OrganizerDoc      `bson:"organizer"`
	Slug           string            `bson:"slug"`
	Name           map[string]string `bson:"name"`
	Locale         string            `bson:"locale"`
	Locales        []string          `bson:"locales"`
	Currency       string            `bson:"currency"`
	DateFrom       *time.Time        `bson:"date_from,omitempty"`
	DateTo         *time.Time        `bson:"date_to,omitempty"`
	DateAdmission  *time.Time        `bson:"date_admission,omitempty"`
	Location       map[string]string `bson:"location,omitempty"`
	GeoLat         *float64          `bson:"geo_lat,omitempty"`
	GeoLon         *float64          `bson:"geo_lon,omitempty"`
	PrimaryColor   string            `bson:"primary_color"`
	HasSeatingPlan bool              `bson:"has_seating_plan"`
	Wallet         WalletSettingsDoc `bson:"googlepaypasses"`
	CreatedAt      time.Time         `bson:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at"`
}

type OrganizerDoc struct {
	Slug string `bson:"slug"`
	Name string `bson:"name"`
}

// WalletSettingsDoc holds the per-event ticket output settings.
type WalletSettingsDoc struct {
	DataProtectionApproval bool              `bson:"dataprotection_approval"`
	ShowDisclaimer         bool              `bson:"show_disclaimer"`
	DisclaimerText         map[string]string `bson:"disclaimer_text,omitempty"`
	LogoURL                string            `bson:"logo,omitempty"`
	HeroURL                string            `bson:"hero,omitempty"`
	Latitude               *float64          `bson:"latitude,omitempty"`
	Longitude              *float64          `bson:"longitude,omitempty"`
}

func (d *EventDoc) toDomain() (*domain.Event, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "event id %q", d.ID)
	}
	return &domain.Event{
		ID:             id,
		OrganizerSlug:  d.Organizer.Slug,
		OrganizerName:  d.Organizer.Name,
		Slug:           d.Slug,
		Name:           d.Name,
		Locale:         d.Locale,
		Locales:        d.Locales,
		Currency:       d.Currency,
		DateFrom:       d.DateFrom,
		DateTo:         d.DateTo,
		DateAdmission:  d.DateAdmission,
		Location:       d.Location,
		GeoLat:         d.GeoLat,
		GeoLon:         d.GeoLon,
		PrimaryColor:   d.PrimaryColor,
		HasSeatingPlan: d.HasSeatingPlan,
		Wallet:         walletSettingsToDomain(d.Wallet),
	}, nil
}

func walletSettingsToDomain(w WalletSettingsDoc) domain.WalletSettings {
	return domain.WalletSettings{
		DataProtectionApproval: w.DataProtectionApproval,
		ShowDisclaimer:         w.ShowDisclaimer,
		DisclaimerText:         w.DisclaimerText,
		LogoURL:                w.LogoURL,
		HeroURL:                w.HeroURL,
		Latitude:               w.Latitude,
		Longitude:              w.Longitude,
	}
}

func walletSettingsFromDomain(w domain.WalletSettings) WalletSettingsDoc {
	return WalletSettingsDoc{
		DataProtectionApproval: w.DataProtectionApproval,
		ShowDisclaimer:         w.ShowDisclaimer,
		DisclaimerText:         w.DisclaimerText,
		LogoURL:                w.LogoURL,
		HeroURL:                w.HeroURL,
		Latitude:               w.Latitude,
		Longitude:              w.Longitude,
	}
}

func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var event EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.Error("failed to get event", err)
		return nil, err
	}
	return event.toDomain()
}

func (c *CatalogRepository) OrganizerExists(ctx context.Context, slug string) (bool, error) {
	n, err := c.coll.CountDocuments(ctx, bson.M{"organizer.slug": slug}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveEvent upserts the whole event document.
func (c *CatalogRepository) SaveEvent(ctx context.Context, event EventDoc) error {
	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": event.ID}, event, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.Error("failed to save event", err)
		return err
	}
	return nil
}

func (c *CatalogRepository) UpdateWalletSettings(ctx context.Context, id uuid.UUID, settings domain.WalletSettings) error {
	result, err := c.coll.UpdateOne(
		ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"googlepaypasses": walletSettingsFromDomain(settings), "updated_at": time.Now()}},
	)
	if err != nil {
		c.logger.Error("failed to update wallet settings", err)
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (c *CatalogRepository) Ping(ctx context.Context) error {
	return c.coll.Database().Client().Ping(ctx, nil)
}
