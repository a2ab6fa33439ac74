package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PropertyType string

const (
	TypeApartment PropertyType = "apartment"
	TypeHouse     PropertyType = "house"
	TypeStudio    PropertyType = "studio"
	TypeOffice    PropertyType = "office"
	TypeShop      PropertyType = "shop"
	TypeLand      PropertyType = "land"
	TypeDuplex    PropertyType = "duplex"
	TypeVilla     PropertyType = "villa"
)

// Location is a GeoJSON-shaped point plus address parts. Precise fields
// (coordinates, street, landmark) are gated; town and quarter are not.
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // [lng, lat]
	Town        string     `json:"town"`
	Quarter     string     `json:"quarter"`
	Street      string     `json:"street"`
	Landmark    string     `json:"landmark"`
}

type Amenities struct {
	Toilet         string `json:"toilet"`   // private | shared
	Bathroom       string `json:"bathroom"` // private | shared
	Kitchen        string `json:"kitchen"`  // private | shared
	MeterType      string `json:"meter_type"`
	Furnished      bool   `json:"furnished"`
	WaterAvailable bool   `json:"water_available"`
	Electricity    bool   `json:"electricity"`
	Internet       bool   `json:"internet"`
	Parking        bool   `json:"parking"`
	Balcony        bool   `json:"balcony"`
	CeilingFan     bool   `json:"ceiling_fan"`
	TiledFloor     bool   `json:"tiled_floor"`
}

type HouseRules struct {
	SmokingAllowed  bool   `json:"smoking_allowed"`
	PetsAllowed     bool   `json:"pets_allowed"`
	QuietHours      string `json:"quiet_hours"`
	VisitorsAllowed bool   `json:"visitors_allowed"`
}

type Contact struct {
	Phone     string `json:"phone"`
	Whatsapp  string `json:"whatsapp"`
	AgentName string `json:"agent_name"`
}

// Property is owned by exactly one user. Contact and the precise parts of
// Location are gated; visibility is computed per caller, never stored.
type Property struct {
	ID               snowflake.ID                   `gorm:"primaryKey" json:"id"`
	OwnerID          snowflake.ID                   `gorm:"not null;index" json:"owner_id"`
	Slug             string                         `gorm:"not null;index" json:"slug"`
	Title            string                         `gorm:"not null" json:"title"`
	Description      string                         `gorm:"not null" json:"description"`
	Type             PropertyType                   `gorm:"type:text;not null;index" json:"type"`
	FloorLevel       int                            `gorm:"not null;default:0" json:"floor_level"`
	Size             string                         `json:"size"`
	RentAmount       int64                          `gorm:"not null" json:"rent_amount"`
	Currency         string                         `gorm:"not null" json:"currency"`
	PaymentFrequency string                         `gorm:"not null" json:"payment_frequency"`
	SecurityDeposit  int64                          `gorm:"not null;default:0" json:"security_deposit"`
	Images           datatypes.JSONSlice[string]    `json:"images"`
	Videos           datatypes.JSONSlice[string]    `json:"videos"`
	Location         datatypes.JSONType[Location]   `json:"location"`
	Amenities        datatypes.JSONType[Amenities]  `json:"amenities"`
	HouseRules       datatypes.JSONType[HouseRules] `json:"house_rules"`
	Contact          datatypes.JSONType[Contact]    `json:"contact"`
	ViewCount        int64                          `gorm:"not null;default:0" json:"view_count"`
	Status           bool                           `gorm:"not null;default:false" json:"status"` // true = publicly listable
	CreatedAt        time.Time                      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time                      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Property) TableName() string { return "properties" }
