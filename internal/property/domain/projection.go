package domain

import (
	"time"
)

// View is the caller-visible shape of one property. Contact and Location are
// pointers so callers can distinguish "hidden" (nil) from "not set" (zero
// value behind a non-nil pointer).
type View struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	Slug             string     `json:"slug"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Type             string     `json:"type"`
	FloorLevel       int        `json:"floor_level"`
	Size             string     `json:"size"`
	RentAmount       int64      `json:"rent_amount"`
	Currency         string     `json:"currency"`
	PaymentFrequency string     `json:"payment_frequency"`
	SecurityDeposit  int64      `json:"security_deposit"`
	Images           []string   `json:"images"`
	Videos           []string   `json:"videos"`
	Amenities        Amenities  `json:"amenities"`
	HouseRules       HouseRules `json:"house_rules"`
	Town             string     `json:"town"`
	Quarter          string     `json:"quarter"`
	ViewCount        int64      `json:"view_count"`
	Status           bool       `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`

	HasAccess    bool   `json:"has_access"`
	AccessReason string `json:"access_reason,omitempty"`

	// Gated. Nil means hidden; a non-nil pointer to a zero value means the
	// owner never filled the field in.
	Contact  *Contact  `json:"contact,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Project shapes a property for one caller. When access is not granted the
// gated fields are absent, not emptied; the ungated location parts (town,
// quarter) stay visible either way.
func Project(p *Property, granted bool) View {
	location := p.Location.Data()
	view := View{
		ID:               p.ID.String(),
		OwnerID:          p.OwnerID.String(),
		Slug:             p.Slug,
		Title:            p.Title,
		Description:      p.Description,
		Type:             string(p.Type),
		FloorLevel:       p.FloorLevel,
		Size:             p.Size,
		RentAmount:       p.RentAmount,
		Currency:         p.Currency,
		PaymentFrequency: p.PaymentFrequency,
		SecurityDeposit:  p.SecurityDeposit,
		Images:           p.Images,
		Videos:           p.Videos,
		Amenities:        p.Amenities.Data(),
		HouseRules:       p.HouseRules.Data(),
		Town:             location.Town,
		Quarter:          location.Quarter,
		ViewCount:        p.ViewCount,
		Status:           p.Status,
		CreatedAt:        p.CreatedAt,
		HasAccess:        granted,
	}

	if granted {
		contact := p.Contact.Data()
		view.Contact = &contact
		view.Location = &location
	}
	return view
}

// Summary is one row of a bulk search page. Gated fields never appear here
// regardless of access; HasAccess is advisory so clients know whether the
// single-fetch path will return full data.
type Summary struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Slug             string    `json:"slug"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Type             string    `json:"type"`
	Size             string    `json:"size"`
	RentAmount       int64     `json:"rent_amount"`
	Currency         string    `json:"currency"`
	PaymentFrequency string    `json:"payment_frequency"`
	Town             string    `json:"town"`
	Image            string    `json:"image,omitempty"`
	Status           bool      `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	HasAccess        bool      `json:"has_access"`
}

// Summarize builds the search-page row for one property.
func Summarize(p *Property) Summary {
	var image string
	if len(p.Images) > 0 {
		image = p.Images[0]
	}
	return Summary{
		ID:               p.ID.String(),
		OwnerID:          p.OwnerID.String(),
		Slug:             p.Slug,
		Title:            p.Title,
		Description:      p.Description,
		Type:             string(p.Type),
		Size:             p.Size,
		RentAmount:       p.RentAmount,
		Currency:         p.Currency,
		PaymentFrequency: p.PaymentFrequency,
		Town:             p.Location.Data().Town,
		Image:            image,
		Status:           p.Status,
		CreatedAt:        p.CreatedAt,
	}
}
