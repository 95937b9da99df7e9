package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// selectionPayload is the decoded "fields" form value.
type selectionPayload struct {
	Fields []string `validate:"required,max=1000,dive,max=1024"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseSelection decodes a JSON array of column names. An empty array is a
// valid selection; null, non-arrays and non-string elements are not.
func ParseSelection(raw string) (Selection, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: fields is empty", ErrInvalidSelection)
	}

	var p selectionPayload
	if err := json.Unmarshal([]byte(raw), &p.Fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}

	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}

	return Selection(p.Fields), nil
}
