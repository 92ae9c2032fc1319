// Package types holds the wire envelopes shared by every HTTP handler.
package types

// SuccessEnvelope wraps successful response bodies under a data key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// Success builds the envelope for a payload.
func Success(data any) SuccessEnvelope {
	return SuccessEnvelope{Data: data}
}

// APIError is the public projection of a coded error. Details are only
// populated for codes that allow them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps an APIError under an error key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Failure builds the envelope for a coded error projection.
func Failure(code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{Error: APIError{Code: code, Message: message, Details: details}}
}
