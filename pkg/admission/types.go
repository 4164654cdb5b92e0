// Package admission is the boundary between the policy engine and its hosts: the policy
// server envelope (validate, validate_settings, protocol_version) and Kubernetes
// AdmissionReview webhooks.
package admission

import (
	"encoding/json"

	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

// ProtocolVersion is the envelope protocol this policy speaks.
const ProtocolVersion = "v1"

// GroupVersionKind identifies the type of the object under review.
type GroupVersionKind struct {
	Group   string `json:"group"`
	Version string `json:"version"`
	Kind    string `json:"kind"`
}

// GroupVersionResource identifies the resource under review.
type GroupVersionResource struct {
	Group    string `json:"group"`
	Version  string `json:"version"`
	Resource string `json:"resource"`
}

// Request is the admission request carried by the envelope.
type Request struct {
	UID       string               `json:"uid"`
	Kind      GroupVersionKind     `json:"kind"`
	Resource  GroupVersionResource `json:"resource"`
	Name      string               `json:"name,omitempty"`
	Namespace string               `json:"namespace,omitempty"`
	Operation string               `json:"operation"`
	Object    json.RawMessage      `json:"object"`
}

// ValidationRequest is the envelope passed to validate.
type ValidationRequest struct {
	Request  Request           `json:"request"`
	Settings settings.Settings `json:"settings"`
}

// ValidationResponse is the envelope returned by validate.
type ValidationResponse struct {
	Accepted      bool        `json:"accepted"`
	Message       *string     `json:"message,omitempty"`
	Code          *int        `json:"code,omitempty"`
	MutatedObject interface{} `json:"mutated_object,omitempty"`
}

// SettingsValidationResponse is returned by validate_settings.
type SettingsValidationResponse struct {
	Valid   bool    `json:"valid"`
	Message *string `json:"message,omitempty"`
}

// AcceptRequest admits the object unchanged.
func AcceptRequest() *ValidationResponse {
	return &ValidationResponse{Accepted: true}
}

// RejectRequest refuses the object. A zero code is omitted.
func RejectRequest(message string, code int) *ValidationResponse {
	resp := &ValidationResponse{Accepted: false, Message: &message}
	if code != 0 {
		resp.Code = &code
	}
	return resp
}

// MutateRequest admits a modified object.
func MutateRequest(mutated interface{}) *ValidationResponse {
	return &ValidationResponse{Accepted: true, MutatedObject: mutated}
}
