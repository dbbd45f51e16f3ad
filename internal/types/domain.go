package types

import (
	"fmt"
	"math"
	"time"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that both components are finite and inside the valid
// latitude/longitude ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < MinLat || c.Lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat,
			fmt.Sprintf("latitude %v must be between %v and %v", c.Lat, MinLat, MaxLat), nil)
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || c.Lon < MinLon || c.Lon > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon,
			fmt.Sprintf("longitude %v must be between %v and %v", c.Lon, MinLon, MaxLon), nil)
	}
	return nil
}

// String renders the coordinate as "lat,lon" with six decimals.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// User is a registered farmer. Phone is the SMS destination.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone_number,omitempty"`
	Blocked   bool      `json:"blocked"`
	SMSOptOut bool      `json:"sms_opt_out"`
	CreatedAt time.Time `json:"created_at"`
}

// Reachable reports whether the user can receive SMS advisories.
func (u *User) Reachable() bool {
	return u != nil && u.Phone != "" && !u.Blocked && !u.SMSOptOut
}

// Farm is a single orchard owned by one user. A farm is identified by
// (OwnerID, Name); ID is the surrogate key used by the API.
//
// Location is nil until the owner registers it, and can be unset again.
type Farm struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"owner_id" validate:"required"`
	Name         string      `json:"name" validate:"required,max=100"`
	Product      ProductType `json:"product" validate:"required"`
	Province     string      `json:"province,omitempty" validate:"max=100"`
	City         string      `json:"city,omitempty" validate:"max=100"`
	Village      string      `json:"village,omitempty" validate:"max=100"`
	AreaHectares *float64    `json:"area_hectares,omitempty" validate:"omitempty,gt=0"`
	Location     *Coordinate `json:"location,omitempty"`
	Status       FarmStatus  `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// HasLocation reports whether a coordinate is registered for the farm.
func (f *Farm) HasLocation() bool {
	return f != nil && f.Location != nil
}

// ProductType is the crop grown on a farm.
type ProductType string

const (
	ProductPistachio ProductType = "pistachio"
	ProductAlmond    ProductType = "almond"
	ProductWalnut    ProductType = "walnut"
	ProductGrape     ProductType = "grape"
	ProductOther     ProductType = "other"
)

// Valid reports whether p is one of the known products.
func (p ProductType) Valid() bool {
	switch p {
	case ProductPistachio, ProductAlmond, ProductWalnut, ProductGrape, ProductOther:
		return true
	}
	return false
}

// FarmStatus is derived from the registration steps: a farm is complete once
// every step has a value.
type FarmStatus string

const (
	FarmComplete   FarmStatus = "complete"
	FarmIncomplete FarmStatus = "incomplete"
)

// RegistrationStep is one field of the farm registration flow. The steps are
// ordered; the first one without a value is where the flow resumes.
type RegistrationStep string

const (
	StepName     RegistrationStep = "name"
	StepProduct  RegistrationStep = "product"
	StepProvince RegistrationStep = "province"
	StepCity     RegistrationStep = "city"
	StepVillage  RegistrationStep = "village"
	StepArea     RegistrationStep = "area"
	StepLocation RegistrationStep = "location"
	StepDone     RegistrationStep = "done"
)

// RegistrationSteps lists the steps in flow order, excluding StepDone.
var RegistrationSteps = []RegistrationStep{
	StepName, StepProduct, StepProvince, StepCity, StepVillage, StepArea, StepLocation,
}

// filled reports whether the farm has a value for the step.
func (s RegistrationStep) filled(f *Farm) bool {
	switch s {
	case StepName:
		return f.Name != ""
	case StepProduct:
		return f.Product != ""
	case StepProvince:
		return f.Province != ""
	case StepCity:
		return f.City != ""
	case StepVillage:
		return f.Village != ""
	case StepArea:
		return f.AreaHectares != nil
	case StepLocation:
		return f.Location != nil
	default:
		return true
	}
}

// NextRegistrationStep returns the first step the farm has no value for, or
// StepDone.
func NextRegistrationStep(f *Farm) RegistrationStep {
	for _, step := range RegistrationSteps {
		if !step.filled(f) {
			return step
		}
	}
	return StepDone
}

// MissingRegistrationSteps returns every step without a value, in flow order.
func MissingRegistrationSteps(f *Farm) []RegistrationStep {
	var missing []RegistrationStep
	for _, step := range RegistrationSteps {
		if !step.filled(f) {
			missing = append(missing, step)
		}
	}
	return missing
}

// DeriveStatus computes the farm status from its registration steps.
func DeriveStatus(f *Farm) FarmStatus {
	if NextRegistrationStep(f) == StepDone {
		return FarmComplete
	}
	return FarmIncomplete
}

// FarmStats summarizes registrations for operators.
type FarmStats struct {
	Users         int            `json:"users"`
	Farms         int            `json:"farms"`
	LocatedFarms  int            `json:"located_farms"`
	ByStatus      map[string]int `json:"by_status"`
	ByProduct     map[string]int `json:"by_product"`
	BlockedUsers  int            `json:"blocked_users"`
	OptedOutUsers int            `json:"opted_out_users"`
}

// OwnedFarm pairs a farm with its owner, as read by the scheduled jobs.
type OwnedFarm struct {
	Farm  *Farm
	Owner *User
}

// AdvisoryKind names the message a user was sent.
type AdvisoryKind string

const (
	AdvisoryFrost              AdvisoryKind = "frost"
	AdvisoryReminderRegister   AdvisoryKind = "reminder_register"
	AdvisoryReminderNoLocation AdvisoryKind = "reminder_no_location"
	AdvisoryReminderIncomplete AdvisoryKind = "reminder_incomplete"
)

// AdvisoryLogEntry records one message handed to the SMS outbox. FarmID is
// empty for user-level reminders. RunDate is the local day of the job run and
// makes the log idempotent across retried invocations.
type AdvisoryLogEntry struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	FarmID      string       `json:"farm_id,omitempty"`
	Kind        AdvisoryKind `json:"kind"`
	RunDate     string       `json:"run_date"`
	FileDate    string       `json:"file_date,omitempty"`
	HighestTier string       `json:"highest_tier,omitempty"`
	MessageID   string       `json:"message_id"`
	Body        string       `json:"body"`
	CreatedAt   time.Time    `json:"created_at"`
}
