package gateway

import (
	"encoding/json"
	"time"

	"licensebeat/internal/errors"
)

// MediaType is the JSON:API media type the licensing service speaks
const MediaType = "application/vnd.api+json"

// document is the top-level JSON:API envelope
type document struct {
	Data   json.RawMessage         `json:"data,omitempty"`
	Meta   json.RawMessage         `json:"meta,omitempty"`
	Errors []errors.APIErrorObject `json:"errors,omitempty"`
}

// resourceObject is a single JSON:API resource
type resourceObject struct {
	ID            string                  `json:"id,omitempty"`
	Type          string                  `json:"type"`
	Attributes    json.RawMessage         `json:"attributes,omitempty"`
	Relationships map[string]relationship `json:"relationships,omitempty"`
}

type relationship struct {
	Data *linkage `json:"data"`
}

type linkage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// validateKeyRequest scopes a key validation to a machine fingerprint
type validateKeyRequest struct {
	Meta validateKeyMeta `json:"meta"`
}

type validateKeyMeta struct {
	Key   string          `json:"key"`
	Scope validationScope `json:"scope"`
}

type validationScope struct {
	Fingerprint string `json:"fingerprint"`
}

// validationMeta is the meta member of a validate-key response
type validationMeta struct {
	Valid    bool   `json:"valid"`
	Detail   string `json:"detail"`
	Code     string `json:"code"`
	Constant string `json:"constant,omitempty"`
}

type machineAttributes struct {
	Fingerprint string `json:"fingerprint"`
	Name        string `json:"name,omitempty"`
}

type processAttributes struct {
	PID           string     `json:"pid"`
	Status        string     `json:"status,omitempty"`
	Interval      int        `json:"interval,omitempty"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
	NextHeartbeat *time.Time `json:"nextHeartbeat,omitempty"`
}

// createRequest wraps a resource in a data member for POST bodies
type createRequest struct {
	Data resourceObject `json:"data"`
}

func newResource(typ string, attrs interface{}, rels map[string]relationship) (*createRequest, error) {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	return &createRequest{Data: resourceObject{Type: typ, Attributes: raw, Relationships: rels}}, nil
}

func relatedTo(typ, id string) relationship {
	return relationship{Data: &linkage{Type: typ, ID: id}}
}

func (r *resourceObject) relatedID(name string) string {
	rel, ok := r.Relationships[name]
	if !ok || rel.Data == nil {
		return ""
	}
	return rel.Data.ID
}
