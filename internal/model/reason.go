package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
)

// ErrInvalidReason is wrapped by every error about a reason outside the closed set.
var ErrInvalidReason = errors.New("invalid notification reason")

// Reason classifies why a notification was generated. The numeric codes are
// persisted; never reassign one, only append.
type Reason int16

const (
	ReasonMentioned          Reason = 0
	ReasonAssigned           Reason = 1
	ReasonWatched            Reason = 2
	ReasonSubscribed         Reason = 3
	ReasonCommented          Reason = 4
	ReasonCreated            Reason = 5
	ReasonProcessed          Reason = 6
	ReasonPrioritized        Reason = 7
	ReasonScheduled          Reason = 8
	ReasonResponsible        Reason = 9
	ReasonDateAlertStartDate Reason = 10
	ReasonDateAlertDueDate   Reason = 11
)

var reasonNames = [...]string{
	ReasonMentioned:          "mentioned",
	ReasonAssigned:           "assigned",
	ReasonWatched:            "watched",
	ReasonSubscribed:         "subscribed",
	ReasonCommented:          "commented",
	ReasonCreated:            "created",
	ReasonProcessed:          "processed",
	ReasonPrioritized:        "prioritized",
	ReasonScheduled:          "scheduled",
	ReasonResponsible:        "responsible",
	ReasonDateAlertStartDate: "date_alert_start_date",
	ReasonDateAlertDueDate:   "date_alert_due_date",
}

// Reasons returns every reason in code order.
func Reasons() []Reason {
	out := make([]Reason, len(reasonNames))
	for i := range reasonNames {
		out[i] = Reason(i)
	}
	return out
}

func (r Reason) Valid() bool {
	return r >= 0 && int(r) < len(reasonNames)
}

func (r Reason) String() string {
	if !r.Valid() {
		return "Reason(" + strconv.Itoa(int(r)) + ")"
	}
	return reasonNames[r]
}

// Code is the persisted integer value.
func (r Reason) Code() int16 {
	return int16(r)
}

// IsDateAlert is true for the start-date and due-date threshold reasons.
func (r Reason) IsDateAlert() bool {
	return r == ReasonDateAlertStartDate || r == ReasonDateAlertDueDate
}

// WantsImmediateMail reports whether the mail alert channel should carry a
// mail for this reason. Every other reason is only part of reminder digests.
func (r Reason) WantsImmediateMail() bool {
	return r == ReasonMentioned || r.IsDateAlert()
}

// ParseReason resolves a symbol such as "date_alert_due_date".
func ParseReason(name string) (Reason, error) {
	for i, n := range reasonNames {
		if n == name {
			return Reason(i), nil
		}
	}
	return 0, apperrors.NewInvalidReason(name, ErrInvalidReason)
}

// ReasonFromCode resolves a persisted code.
func ReasonFromCode(code int64) (Reason, error) {
	r := Reason(code)
	if int64(r) != code || !r.Valid() {
		return 0, apperrors.NewInvalidReason(strconv.FormatInt(code, 10), ErrInvalidReason)
	}
	return r, nil
}

func (r Reason) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, apperrors.NewInvalidReason(r.String(), ErrInvalidReason)
	}
	return json.Marshal(reasonNames[r])
}

// UnmarshalJSON accepts the symbol or the numeric code.
func (r *Reason) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseReason(name)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}

	var code int64
	if err := json.Unmarshal(data, &code); err != nil {
		return apperrors.NewInvalidReason(string(data), ErrInvalidReason)
	}
	parsed, err := ReasonFromCode(code)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Reason) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, apperrors.NewInvalidReason(r.String(), ErrInvalidReason)
	}
	return int64(r), nil
}

func (r *Reason) Scan(src interface{}) error {
	var code int64
	switch v := src.(type) {
	case int64:
		code = v
	case int32:
		code = int64(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("scan reason: %w", err)
		}
		code = n
	case nil:
		return apperrors.NewInvalidReason("NULL", ErrInvalidReason)
	default:
		return fmt.Errorf("scan reason: unsupported type %T", src)
	}

	parsed, err := ReasonFromCode(code)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
