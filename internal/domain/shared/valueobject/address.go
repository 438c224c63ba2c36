package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is a value object representing a structured delivery address.
// It is immutable - all operations return new Address instances.
type Address struct {
	line1      string
	city       string
	province   string
	postalCode string
	country    string
}

// DefaultCountry is the country assumed when none is provided
const DefaultCountry = "CA"

// NewAddress creates a new Address. Line1, city, province and postal code
// are required; country defaults to CA when empty.
func NewAddress(line1, city, province, postalCode, country string) (Address, error) {
	line1 = strings.TrimSpace(line1)
	city = strings.TrimSpace(city)
	province = strings.ToUpper(strings.TrimSpace(province))
	postalCode = strings.ToUpper(strings.TrimSpace(postalCode))
	country = strings.ToUpper(strings.TrimSpace(country))

	if line1 == "" {
		return Address{}, fmt.Errorf("address: line1 cannot be empty")
	}
	if city == "" {
		return Address{}, fmt.Errorf("address: city cannot be empty")
	}
	if province == "" {
		return Address{}, fmt.Errorf("address: province cannot be empty")
	}
	if postalCode == "" {
		return Address{}, fmt.Errorf("address: postal code cannot be empty")
	}
	if country == "" {
		country = DefaultCountry
	}

	return Address{
		line1:      line1,
		city:       city,
		province:   province,
		postalCode: postalCode,
		country:    country,
	}, nil
}

// Line1 returns the street line
func (a Address) Line1() string { return a.line1 }

// City returns the city
func (a Address) City() string { return a.city }

// Province returns the two-letter province code
func (a Address) Province() string { return a.province }

// PostalCode returns the postal code
func (a Address) PostalCode() string { return a.postalCode }

// Country returns the country code
func (a Address) Country() string { return a.country }

// IsZero returns true if the address is empty
func (a Address) IsZero() bool {
	return a.line1 == "" && a.city == "" && a.province == ""
}

// String returns a single-line rendering of the address
func (a Address) String() string {
	return fmt.Sprintf("%s, %s, %s %s, %s", a.line1, a.city, a.province, a.postalCode, a.country)
}

// addressJSON is the serialized form of Address
type addressJSON struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// MarshalJSON implements json.Marshaler
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(addressJSON{
		Line1:      a.line1,
		City:       a.city,
		Province:   a.province,
		PostalCode: a.postalCode,
		Country:    a.country,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Address) UnmarshalJSON(data []byte) error {
	var aux addressJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.line1 = aux.Line1
	a.city = aux.City
	a.province = aux.Province
	a.postalCode = aux.PostalCode
	a.country = aux.Country
	return nil
}

// Value implements driver.Valuer so Address can be stored as JSON
func (a Address) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("address: cannot scan type %T", value)
	}
}
