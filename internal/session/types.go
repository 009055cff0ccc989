package session

import (
	"errors"
	"fmt"
	"strings"

	"larder/internal/models"
	"larder/internal/timecodec"
)

var (
	ErrRequiredFieldEmpty      = errors.New("required field empty")
	ErrInvalidAmountFormat     = errors.New("invalid amount format")
	ErrInvalidDateFormat       = timecodec.ErrInvalidDateFormat
	ErrFieldLocked             = errors.New("field is locked")
	ErrPromptRequired          = errors.New("custom option prompt required")
	ErrUnknownOption           = errors.New("value is not a current option")
	ErrInvalidState            = errors.New("operation not valid in current state")
	ErrDeleteNotAllowed        = errors.New("delete not allowed")
	ErrCancelNeedsConfirmation = errors.New("cancel needs confirmation")
	errNoPrompt                = fmt.Errorf("%w: no prompt open", ErrInvalidState)
)

// Mode is the kind of interaction a session was opened for
type Mode string

const (
	ModeNew      Mode = "new"
	ModeEdit     Mode = "edit"
	ModePurchase Mode = "purchase"
)

// State of an edit session
type State string

const (
	StateEditing    State = "editing"
	StateConfirming State = "confirming"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
	StateCancelled  State = "cancelled"
	StateDeleted    State = "deleted"
)

// Terminal reports whether no further operation is accepted
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled || s == StateDeleted
}

// Field names an editable ingredient attribute
type Field string

const (
	FieldName       Field = "name"
	FieldAmount     Field = "amount"
	FieldBestBefore Field = "bestBefore"
	FieldLocation   Field = "location"
	FieldUnit       Field = "unit"
	FieldCategory   Field = "category"
)

// Fields lists every editable field in form order
var Fields = []Field{FieldName, FieldAmount, FieldBestBefore, FieldLocation, FieldUnit, FieldCategory}

var requiredFields = []Field{FieldName, FieldAmount, FieldBestBefore}

// ParseField accepts a field name in any case
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// OptionKind returns the option kind backing an enumerated field
func (f Field) OptionKind() (models.OptionKind, bool) {
	switch f {
	case FieldLocation:
		return models.KindLocation, true
	case FieldUnit:
		return models.KindUnit, true
	case FieldCategory:
		return models.KindCategory, true
	}
	return "", false
}

// PromptType tells the presentation layer what input a prompt asks for
type PromptType string

const (
	// PromptCustomOption asks for the text of a new custom option
	PromptCustomOption PromptType = "custom_option"
	// PromptFill asks for a value a purchase still lacks
	PromptFill PromptType = "fill"
)

// Prompt is an outstanding request for user input
type Prompt struct {
	Type  PromptType        `json:"type"`
	Field Field             `json:"field"`
	Kind  models.OptionKind `json:"kind,omitempty"`
}

// ValidationError names every required field left empty
type ValidationError struct {
	Fields []Field
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("%v: %s", ErrRequiredFieldEmpty, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrRequiredFieldEmpty
}

// Snapshot is a copy of the session state for presentation
type Snapshot struct {
	Mode          Mode               `json:"mode"`
	State         State              `json:"state"`
	Values        map[Field]string   `json:"values"`
	Locked        []Field            `json:"locked"`
	Prompts       []Prompt           `json:"prompts"`
	CancelPending bool               `json:"cancelPending"`
	Error         string             `json:"error,omitempty"`
	Record        *models.Ingredient `json:"record"`
}
