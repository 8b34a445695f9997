package client

import (
	"bytes"
	"encoding/json"
)

// PartialErrorCode identifies why one field of an otherwise successful
// payload could not be produced.
type PartialErrorCode string

// PartialErrorCodeKMSFailure means the key management service could not
// decrypt the field.
const PartialErrorCodeKMSFailure PartialErrorCode = "kms_failure"

func (c PartialErrorCode) IsKnown() bool {
	return c == PartialErrorCodeKMSFailure
}

// PartialError is a per-field error embedded in a successful payload.
type PartialError struct {
	Code   PartialErrorCode `json:"code"`
	Reason string           `json:"reason"`
}

// ErrorDetail is one entry of the array-form errors member returned with
// failed requests.
type ErrorDetail struct {
	Description string `json:"description"`
}

// Extension carries the provider's "errors" member. Payload models embed it
// so that partial failures stay discoverable without failing the envelope.
type Extension struct {
	RawErrors json.RawMessage `json:"errors,omitempty"`
}

// HasErrors reports whether the payload carried an errors member.
func (e *Extension) HasErrors() bool {
	return len(bytes.TrimSpace(e.RawErrors)) > 0 && !bytes.Equal(bytes.TrimSpace(e.RawErrors), []byte("null"))
}

// PartialErrors returns the object-form errors keyed by field name. Entries
// without a code are omitted. The map is empty when the errors member is
// absent or is not an object.
func (e *Extension) PartialErrors() map[string]PartialError {
	result := map[string]PartialError{}

	if !e.HasErrors() {
		return result
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.RawErrors, &fields); err != nil {
		return result
	}

	for key, raw := range fields {
		var pe PartialError
		if err := json.Unmarshal(raw, &pe); err != nil || pe.Code == "" {
			continue
		}
		result[key] = pe
	}

	return result
}

// Errors returns the array-form errors, or nil when the errors member is
// absent or is not an array.
func (e *Extension) Errors() []ErrorDetail {
	if !e.HasErrors() {
		return nil
	}

	var details []ErrorDetail
	if err := json.Unmarshal(e.RawErrors, &details); err != nil {
		return nil
	}

	return details
}
