package wallet

// Field names follow the EventTicketClass and EventTicketObject resources of the
// Wallet Objects REST API v1.

type TranslatedString struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type LocalizedString struct {
	DefaultValue     *TranslatedString  `json:"defaultValue,omitempty"`
	TranslatedValues []TranslatedString `json:"translatedValues,omitempty"`
}

type URI struct {
	URI                  string           `json:"uri"`
	Description          string           `json:"description,omitempty"`
	LocalizedDescription *LocalizedString `json:"localizedDescription,omitempty"`
}

type Image struct {
	SourceURI          URI              `json:"sourceUri"`
	ContentDescription *LocalizedString `json:"contentDescription,omitempty"`
}

type LatLongPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type CallbackOptions struct {
	URL string `json:"url"`
}

type EventVenue struct {
	Name    *LocalizedString `json:"name,omitempty"`
	Address *LocalizedString `json:"address,omitempty"`
}

type EventDateTime struct {
	DoorsOpenLabel string `json:"doorsOpenLabel,omitempty"`
	DoorsOpen      string `json:"doorsOpen,omitempty"`
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
}

type EventTicketClass struct {
	ID                                     string           `json:"id"`
	IssuerName                             string           `json:"issuerName"`
	EventName                              *LocalizedString `json:"eventName"`
	ReviewStatus                           ReviewStatus     `json:"reviewStatus"`
	MultipleDevicesAndHoldersAllowedStatus HoldersStatus    `json:"multipleDevicesAndHoldersAllowedStatus"`
	HomepageURI                            *URI             `json:"homepageUri,omitempty"`
	CallbackOptions                        *CallbackOptions `json:"callbackOptions,omitempty"`
	Locations                              []LatLongPoint   `json:"locations,omitempty"`
	CountryCode                            string           `json:"countryCode,omitempty"`
	HeroImage                              *Image           `json:"heroImage,omitempty"`
	HexBackgroundColor                     string           `json:"hexBackgroundColor,omitempty"`
	EventID                                string           `json:"eventId"`
	Logo                                   *Image           `json:"logo,omitempty"`
	Venue                                  *EventVenue      `json:"venue,omitempty"`
	DateTime                               *EventDateTime   `json:"dateTime,omitempty"`
	ConfirmationCodeLabel                  string           `json:"confirmationCodeLabel,omitempty"`
	SeatLabel                              string           `json:"seatLabel,omitempty"`
}

type Barcode struct {
	Type          BarcodeType `json:"type"`
	Value         string      `json:"value"`
	AlternateText string      `json:"alternateText,omitempty"`
}

type EventReservationInfo struct {
	ConfirmationCode string `json:"confirmationCode"`
}

type Money struct {
	Micros       int64  `json:"micros"`
	CurrencyCode string `json:"currencyCode"`
}

type EventSeat struct {
	Seat *LocalizedString `json:"seat,omitempty"`
}

type EventTicketObject struct {
	ID               string                `json:"id"`
	ClassID          string                `json:"classId"`
	State            ObjectState           `json:"state"`
	Barcode          *Barcode              `json:"barcode,omitempty"`
	ReservationInfo  *EventReservationInfo `json:"reservationInfo,omitempty"`
	TicketHolderName string                `json:"ticketHolderName,omitempty"`
	TicketNumber     string                `json:"ticketNumber,omitempty"`
	TicketType       *LocalizedString      `json:"ticketType,omitempty"`
	FaceValue        *Money                `json:"faceValue,omitempty"`
	SeatInfo         *EventSeat            `json:"seatInfo,omitempty"`
}
