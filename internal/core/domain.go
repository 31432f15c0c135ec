package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// DefaultCategoryName is the category provisioned for projects without any.
const DefaultCategoryName = "General"

// UncategorizedName labels transactions whose category is missing or deleted.
const UncategorizedName = "Uncategorized"

// DefaultInvitationTTL is the validity window of a freshly issued invitation.
const DefaultInvitationTTL = 7 * 24 * time.Hour

type (
	Role             string
	InvitationStatus string

	Date struct {
		time.Time
	}

	Project struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		OwnerID     string    `json:"owner_id"`
		Settings    Settings  `json:"settings"`
		CreatedAt   time.Time `json:"created_at"`
	}

	Member struct {
		ProjectID string    `json:"project_id"`
		UserID    string    `json:"user_id"`
		Role      Role      `json:"role"`
		CreatedAt time.Time `json:"created_at"`
	}

	Category struct {
		ID        string    `json:"id"`
		ProjectID string    `json:"project_id"`
		Name      string    `json:"name"`
		Color     string    `json:"color"`
		Order     int       `json:"order"`
		CreatedAt time.Time `json:"created_at"`
	}

	// CategoryPatch carries the optional attributes of a category update.
	CategoryPatch struct {
		Name  *string `json:"name,omitempty"`
		Color *string `json:"color,omitempty"`
	}

	Transaction struct {
		ID          string     `json:"id"`
		ProjectID   string     `json:"project_id"`
		Amount      Money      `json:"amount"`
		Currency    string     `json:"currency"`
		CategoryID  string     `json:"category_id,omitempty"`
		Description string     `json:"description"`
		Date        Date       `json:"date"`
		CustomData  CustomData `json:"custom_data"`
		CreatedBy   string     `json:"created_by"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}

	// CustomData maps custom field names to values. Keys are not checked
	// against the project's fields; stale keys stay around.
	CustomData map[string]any

	Invitation struct {
		ID        string           `json:"id"`
		ProjectID string           `json:"project_id"`
		Email     string           `json:"email"`
		Role      Role             `json:"role"`
		InvitedBy string           `json:"invited_by"`
		Token     string           `json:"token,omitempty"`
		Status    InvitationStatus `json:"status"`
		ExpiresAt time.Time        `json:"expires_at"`
		CreatedAt time.Time        `json:"created_at"`
	}
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDenied            = errors.New("write denied: no rows affected")
	ErrForbidden         = errors.New("forbidden")
	ErrOutOfRange        = errors.New("position out of range")
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCurrency   = errors.New("invalid currency code")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidColor      = errors.New("invalid color, expected #rrggbb")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrInvitationPending = errors.New("an active invitation already exists for this email")
	ErrInvitationExpired = errors.New("invitation expired")
	ErrInvitationUsed    = errors.New("invitation already accepted")
	ErrPartialMigration  = errors.New("field rename migration stopped partway")
)

var (
	colorPattern    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// DateLayout is the calendar-date wire format.
const DateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Compare orders two dates; -1, 0 or +1.
func (d Date) Compare(o Date) int {
	return d.Time.Compare(o.Time)
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleMember, RoleViewer:
		return true
	}
	return false
}

// CanWrite reports whether the role may mutate project data.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleMember
}

// ValidateColor accepts #rrggbb hex strings.
func ValidateColor(c string) error {
	if !colorPattern.MatchString(c) {
		return ErrInvalidColor
	}
	return nil
}

// ValidateCurrency accepts three upper-case letters.
func ValidateCurrency(c string) error {
	if !currencyPattern.MatchString(c) {
		return ErrInvalidCurrency
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return ValidateColor(c.Color)
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := ValidateCurrency(t.Currency); err != nil {
		return err
	}
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// Clone returns a shallow copy of the map, safe to mutate at the top level.
func (c CustomData) Clone() CustomData {
	out := make(CustomData, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Active reports whether the invitation can still be accepted at now.
func (i Invitation) Active(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}

// EffectiveStatus is the status a reader should see at now, counting a
// pending invitation past its expiry as expired.
func (i Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && !now.Before(i.ExpiresAt) {
		return InvitationExpired
	}
	return i.Status
}
