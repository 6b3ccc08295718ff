package quickbooks

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means the user has no usable QuickBooks connection and must authorize again.
	ErrNotConnected = errors.New("QuickBooks not connected")
	ErrInvalidID    = errors.New("invalid QuickBooks entity id")
)

// FaultDetail is one entry of a QuickBooks Fault.
type FaultDetail struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail,omitempty"`
	Code    string `json:"code,omitempty"`
	Element string `json:"element,omitempty"`
}

// Fault is the error payload QuickBooks embeds in response bodies.
type Fault struct {
	Error []FaultDetail `json:"Error"`
	Type  string        `json:"type,omitempty"`
}

// FaultError is returned whenever a response body carries a Fault, whatever the status.
type FaultError struct {
	StatusCode int
	Fault      Fault
}

func (e *FaultError) Error() string {
	payload, _ := json.Marshal(e.Fault)
	return "QuickBooks API Error: " + string(payload)
}

// StatusError is a non-2xx response without a Fault body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("QuickBooks API returned status %d: %s", e.StatusCode, e.Body)
}
