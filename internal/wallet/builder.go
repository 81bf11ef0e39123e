package wallet

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/i18n"
	"github.com/robertarktes/googlepaypasses/internal/observability"
)

// Geocoder resolves a postal address to coordinates. ok is false when nothing matched.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (lat, lon float64, ok bool, err error)
}

// Builder maps host events and positions onto wallet payloads. It holds no mutable state.
type Builder struct {
	ns       Namespace
	siteURL  string
	geocoder Geocoder
	logger   observability.Logger
}

// NewBuilder returns a Builder. geocoder may be nil.
func NewBuilder(ns Namespace, siteURL string, geocoder Geocoder, logger observability.Logger) *Builder {
	return &Builder{
		ns:       ns,
		siteURL:  strings.TrimRight(siteURL, "/"),
		geocoder: geocoder,
		logger:   logger,
	}
}

func (b *Builder) ClassID(ev *domain.Event) string {
	return b.ns.ClassID(ev.OrganizerSlug, ev.Slug)
}

func (b *Builder) NewObjectID(ev *domain.Event, pos *domain.Position) string {
	return b.ns.NewObjectID(ev.OrganizerSlug, ev.Slug, pos.OrderCode, pos.PositionNo)
}

// WebhookURL is the callback Google posts save/delete notifications to.
func (b *Builder) WebhookURL(organizer string) string {
	return b.siteURL + "/_googlepaypasses/webhook/" + url.PathEscape(organizer) + "/"
}

func (b *Builder) Class(ctx context.Context, ev *domain.Event) *EventTicketClass {
	cls := &EventTicketClass{
		ID:                                     b.ClassID(ev),
		IssuerName:                             ev.OrganizerName,
		EventName:                              localized(ev.Locale, ev.Name),
		ReviewStatus:                           ReviewUnderReview,
		MultipleDevicesAndHoldersAllowedStatus: MultipleHolders,
		HomepageURI: &URI{
			URI:                  b.siteURL + "/" + url.PathEscape(ev.OrganizerSlug) + "/" + url.PathEscape(ev.Slug) + "/",
			Description:          i18n.Translate(i18n.Website, ev.Locale),
			LocalizedDescription: localized(ev.Locale, i18n.Translations(i18n.Website, ev.Locales)),
		},
		CallbackOptions:       &CallbackOptions{URL: b.WebhookURL(ev.OrganizerSlug)},
		CountryCode:           i18n.CountryCode(ev.Locale),
		HexBackgroundColor:    ev.PrimaryColor,
		EventID:               b.ns.EventID(ev.OrganizerSlug, ev.Slug),
		ConfirmationCodeLabel: confirmationCodeLabel,
	}

	if loc, ok := b.location(ctx, ev); ok {
		cls.Locations = []LatLongPoint{loc}
	}
	if ev.Wallet.HeroURL != "" {
		cls.HeroImage = b.image(ev.Wallet.HeroURL, ev)
	}
	if ev.Wallet.LogoURL != "" {
		cls.Logo = b.image(ev.Wallet.LogoURL, ev)
	}
	if !ev.Location.IsEmpty() {
		cls.Venue = venue(ev)
	}
	if ev.DateFrom != nil && ev.DateTo != nil && ev.DateAdmission != nil {
		cls.DateTime = &EventDateTime{
			DoorsOpenLabel: doorsOpenLabel,
			DoorsOpen:      ev.DateAdmission.Format(time.RFC3339),
			Start:          ev.DateFrom.Format(time.RFC3339),
			End:            ev.DateTo.Format(time.RFC3339),
		}
	}
	if ev.HasSeatingPlan {
		cls.SeatLabel = seatLabel
	}
	return cls
}

func (b *Builder) Object(ev *domain.Event, pos *domain.Position, objectID string, state ObjectState) *EventTicketObject {
	obj := &EventTicketObject{
		ID:      objectID,
		ClassID: b.ClassID(ev),
		State:   state,
		Barcode: &Barcode{
			Type:          BarcodeQRCode,
			Value:         pos.Secret,
			AlternateText: pos.Secret,
		},
		ReservationInfo:  &EventReservationInfo{ConfirmationCode: ev.Slug + "-" + pos.OrderCode},
		TicketHolderName: pos.HolderName(),
		TicketNumber:     pos.Secret,
		TicketType:       localized(ev.Locale, ticketType(ev, pos)),
		FaceValue:        b.faceValue(pos.Price, ev.Currency),
	}

	if ev.HasSeatingPlan {
		var seat map[string]string
		if pos.Seat != "" {
			seat = make(map[string]string, len(ev.Locales))
			for _, l := range ev.Locales {
				seat[l] = pos.Seat
			}
		} else {
			seat = i18n.Translations(i18n.GeneralAdmission, ev.Locales)
		}
		obj.SeatInfo = &EventSeat{Seat: localized(ev.Locale, seat)}
	}
	return obj
}

// location prefers the per-event override, then the event's own geo data, then the geocoder.
func (b *Builder) location(ctx context.Context, ev *domain.Event) (LatLongPoint, bool) {
	if ev.Wallet.Latitude != nil && ev.Wallet.Longitude != nil {
		return LatLongPoint{Latitude: *ev.Wallet.Latitude, Longitude: *ev.Wallet.Longitude}, true
	}
	if ev.GeoLat != nil && ev.GeoLon != nil {
		return LatLongPoint{Latitude: *ev.GeoLat, Longitude: *ev.GeoLon}, true
	}
	if b.geocoder == nil || ev.Location.IsEmpty() {
		return LatLongPoint{}, false
	}

	address := strings.Join(splitLines(ev.Location.Localize(ev.Locale)), ", ")
	lat, lon, ok, err := b.geocoder.Lookup(ctx, address)
	if err != nil {
		b.logger.WithField("event", ev.Slug).Warn("geocoding failed: ", err)
		return LatLongPoint{}, false
	}
	if !ok {
		return LatLongPoint{}, false
	}
	return LatLongPoint{Latitude: lat, Longitude: lon}, true
}

func (b *Builder) image(ref string, ev *domain.Event) *Image {
	uri := ref
	if base, err := url.Parse(b.siteURL + "/"); err == nil {
		if r, err := url.Parse(ref); err == nil {
			uri = base.ResolveReference(r).String()
		}
	}
	return &Image{
		SourceURI: URI{
			URI:                  uri,
			Description:          ev.Name.Localize(ev.Locale),
			LocalizedDescription: localized(ev.Locale, ev.Name),
		},
	}
}

// venue uses the first location line as the name and the rest as the address.
// Google requires both, so a single-line location is repeated.
func venue(ev *domain.Event) *EventVenue {
	name := make(map[string]string, len(ev.Location))
	address := make(map[string]string, len(ev.Location))
	for locale, value := range ev.Location {
		lines := splitLines(value)
		if len(lines) == 0 {
			continue
		}
		name[locale] = lines[0]
		if len(lines) > 1 {
			address[locale] = strings.Join(lines[1:], "\n")
		} else {
			address[locale] = lines[0]
		}
	}
	return &EventVenue{
		Name:    localized(ev.Locale, name),
		Address: localized(ev.Locale, address),
	}
}

func ticketType(ev *domain.Event, pos *domain.Position) map[string]string {
	locales := ev.Locales
	if len(locales) == 0 {
		locales = []string{ev.Locale}
	}
	out := make(map[string]string, len(locales))
	for _, l := range locales {
		label := pos.ItemName.Localize(l)
		if !pos.VariationName.IsEmpty() {
			label += " – " + pos.VariationName.Localize(l)
		}
		out[l] = label
	}
	return out
}

// localized builds a LocalizedString whose default is the value for defaultLocale.
// Other non-empty locales become translated values in stable order.
func localized(defaultLocale string, values map[string]string) *LocalizedString {
	if domain.I18n(values).IsEmpty() {
		return nil
	}
	ls := &LocalizedString{
		DefaultValue: &TranslatedString{
			Language: defaultLocale,
			Value:    domain.I18n(values).Localize(defaultLocale),
		},
	}
	locales := make([]string, 0, len(values))
	for l := range values {
		if l != defaultLocale && strings.TrimSpace(values[l]) != "" {
			locales = append(locales, l)
		}
	}
	sort.Strings(locales)
	for _, l := range locales {
		ls.TranslatedValues = append(ls.TranslatedValues, TranslatedString{Language: l, Value: values[l]})
	}
	return ls
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
