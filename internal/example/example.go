// Package example defines the sample entity set served by the restcore
// binaries and used as fixtures across the test suites.
package example

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fluxbase-eu/restcore/internal/entity"
)

// Role is the access role of a user.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// EnumValues lists the valid roles.
func (Role) EnumValues() []string {
	return []string{string(RoleAdmin), string(RoleUser)}
}

// Country is referenced by users and addresses.
type Country struct {
	entity.BaseAPIEntity
	Name       string          `json:"name" db:"name"`
	Code       string          `json:"code" db:"code"`
	Population int64           `json:"population" db:"population"`
	Area       decimal.Decimal `json:"area" db:"area"`
}

func (Country) TableName() string { return "countries" }

// Address belongs to a user.
type Address struct {
	entity.BaseAPIEntity
	Street  string   `json:"street" db:"street"`
	Number  int      `json:"number" db:"number"`
	UserID  int64    `json:"userId" db:"user_id"`
	Country *Country `json:"country,omitempty" db:"country_id" ref:"id"`
}

func (Address) TableName() string { return "addresses" }

// Order is a purchase placed by a user.
type Order struct {
	entity.BaseAPIEntity
	UserID   int64           `json:"userId" db:"user_id"`
	Total    decimal.Decimal `json:"total" db:"total"`
	Quantity int             `json:"quantity" db:"quantity"`
	PlacedAt time.Time       `json:"placedAt" db:"placed_at"`
}

func (Order) TableName() string { return "orders" }

// Settings is stored as a JSON document.
type Settings struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

// User is the main sample entity.
type User struct {
	entity.BaseAPIEntity
	Name      string     `json:"name" db:"name"`
	Email     *string    `json:"email,omitempty" db:"email"`
	Age       int        `json:"age" db:"age"`
	Score     float64    `json:"score" db:"score"`
	Role      Role       `json:"role" db:"role"`
	Birthday  *time.Time `json:"birthday,omitempty" db:"birthday"`
	Tags      []string   `json:"tags,omitempty" db:"tags"`
	Settings  *Settings  `json:"settings,omitempty" db:"settings"`
	Country   *Country   `json:"country,omitempty" db:"country_id" ref:"id"`
	Addresses []Address  `json:"addresses,omitempty" fk:"user_id"`
	Orders    []Order    `json:"orders,omitempty" fk:"user_id"`
}

func (User) TableName() string { return "users" }
