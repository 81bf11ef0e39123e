package wallet

// ResourceType names a Wallet Objects API collection.
type ResourceType string

const (
	EventTicketClassResource  ResourceType = "eventTicketClass"
	EventTicketObjectResource ResourceType = "eventTicketObject"
)

type ReviewStatus string

const (
	ReviewDraft       ReviewStatus = "draft"
	ReviewUnderReview ReviewStatus = "underReview"
	ReviewApproved    ReviewStatus = "approved"
	ReviewRejected    ReviewStatus = "rejected"
)

type ObjectState string

const (
	StateActive    ObjectState = "active"
	StateInactive  ObjectState = "inactive"
	StateCompleted ObjectState = "completed"
	StateExpired   ObjectState = "expired"
)

type HoldersStatus string

const (
	MultipleHolders   HoldersStatus = "multipleHolders"
	OneUserAllDevices HoldersStatus = "oneUserAllDevices"
)

type BarcodeType string

const BarcodeQRCode BarcodeType = "qrCode"

const (
	doorsOpenLabel        = "doorsOpen"
	confirmationCodeLabel = "orderNumber"
	seatLabel             = "seat"
)
