package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"licensebeat/internal/errors"
	"licensebeat/pkg/contracts/domain"
)

// Operation names used in spans, metrics and GatewayError.Operation
const (
	OpValidateKey   = "validate-key"
	OpCreateMachine = "create-machine"
	OpRetrieve      = "retrieve"
	OpDeleteMachine = "delete-machine"
	OpCreateProcess = "create-process"
	OpDeleteProcess = "delete-process"
	OpPingProcess   = "ping-process"
)

// ValidateKey validates key scoped to fingerprint. The request carries the
// key in its body and is sent without an Authorization header.
func (c *Client) ValidateKey(ctx context.Context, fingerprint, key string) (*domain.ValidationResult, error) {
	doc, err := c.do(ctx, call{
		op:     OpValidateKey,
		method: http.MethodPost,
		path:   "/licenses/actions/validate-key",
		body: validateKeyRequest{Meta: validateKeyMeta{
			Key:   key,
			Scope: validationScope{Fingerprint: fingerprint},
		}},
	})
	if err != nil {
		return nil, err
	}

	var meta validationMeta
	if len(doc.Meta) == 0 {
		return nil, &errors.GatewayError{Operation: OpValidateKey, StatusCode: http.StatusOK,
			Cause: fmt.Errorf("response has no validation meta")}
	}
	if err := json.Unmarshal(doc.Meta, &meta); err != nil {
		return nil, &errors.GatewayError{Operation: OpValidateKey, StatusCode: http.StatusOK,
			Cause: fmt.Errorf("failed to parse validation meta: %w", err)}
	}

	result := &domain.ValidationResult{
		Valid:   meta.Valid,
		Code:    domain.ParseValidationCode(meta.Code),
		RawCode: meta.Code,
		Detail:  meta.Detail,
	}

	// data is null when the key does not match any license
	if len(doc.Data) > 0 && string(doc.Data) != "null" {
		var lic resourceObject
		if err := json.Unmarshal(doc.Data, &lic); err != nil {
			return nil, &errors.GatewayError{Operation: OpValidateKey, StatusCode: http.StatusOK,
				Cause: fmt.Errorf("failed to parse license resource: %w", err)}
		}
		result.LicenseID = lic.ID
	}

	return result, nil
}

// CreateMachine claims a seat on licenseID for fingerprint
func (c *Client) CreateMachine(ctx context.Context, fingerprint, licenseID, key string) (*domain.Machine, error) {
	body, err := newResource(string(domain.ResourceMachines),
		machineAttributes{Fingerprint: fingerprint},
		map[string]relationship{"license": relatedTo(string(domain.ResourceLicenses), licenseID)})
	if err != nil {
		return nil, &errors.GatewayError{Operation: OpCreateMachine, Cause: err}
	}

	doc, err := c.do(ctx, call{
		op:     OpCreateMachine,
		method: http.MethodPost,
		path:   "/machines",
		key:    key,
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	return c.machineFrom(OpCreateMachine, doc)
}

// RetrieveMachine looks a machine up by id. The service also accepts the
// machine fingerprint in place of the id.
func (c *Client) RetrieveMachine(ctx context.Context, id, key string) (*domain.Machine, error) {
	doc, err := c.do(ctx, call{
		op:     OpRetrieve,
		method: http.MethodGet,
		path:   "/machines/" + url.PathEscape(id),
		key:    key,
	})
	if err != nil {
		return nil, err
	}
	return c.machineFrom(OpRetrieve, doc)
}

// Retrieve performs a generic lookup of a resource by type and id
func (c *Client) Retrieve(ctx context.Context, typ domain.ResourceType, id, key string) (*domain.Resource, error) {
	doc, err := c.do(ctx, call{
		op:     OpRetrieve,
		method: http.MethodGet,
		path:   "/" + string(typ) + "/" + url.PathEscape(id),
		key:    key,
	})
	if err != nil {
		return nil, err
	}

	res, err := c.decodeResource(OpRetrieve, doc, string(typ))
	if err != nil {
		return nil, err
	}

	out := &domain.Resource{Type: typ, ID: res.ID}
	if len(res.Attributes) > 0 {
		if err := json.Unmarshal(res.Attributes, &out.Attributes); err != nil {
			return nil, &errors.GatewayError{Operation: OpRetrieve, StatusCode: http.StatusOK,
				Cause: fmt.Errorf("failed to parse attributes: %w", err)}
		}
	}
	if err := c.check(OpRetrieve, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMachine releases a seat. Not used by the normal lifecycle.
func (c *Client) DeleteMachine(ctx context.Context, id, key string) error {
	_, err := c.do(ctx, call{
		op:     OpDeleteMachine,
		method: http.MethodDelete,
		path:   "/machines/" + url.PathEscape(id),
		key:    key,
		delete: true,
	})
	return err
}

// CreateProcess registers pid as a process of machineID
func (c *Client) CreateProcess(ctx context.Context, pid, machineID, key string) (*domain.Process, error) {
	body, err := newResource(string(domain.ResourceProcesses),
		processAttributes{PID: pid},
		map[string]relationship{"machine": relatedTo(string(domain.ResourceMachines), machineID)})
	if err != nil {
		return nil, &errors.GatewayError{Operation: OpCreateProcess, Cause: err}
	}

	doc, err := c.do(ctx, call{
		op:     OpCreateProcess,
		method: http.MethodPost,
		path:   "/processes",
		key:    key,
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	return c.processFrom(OpCreateProcess, doc)
}

// DeleteProcess deregisters a process
func (c *Client) DeleteProcess(ctx context.Context, id, key string) error {
	_, err := c.do(ctx, call{
		op:     OpDeleteProcess,
		method: http.MethodDelete,
		path:   "/processes/" + url.PathEscape(id),
		key:    key,
		delete: true,
	})
	return err
}

// PingProcess sends one heartbeat for a process
func (c *Client) PingProcess(ctx context.Context, id, key string) (*domain.Process, error) {
	doc, err := c.do(ctx, call{
		op:     OpPingProcess,
		method: http.MethodPost,
		path:   "/processes/" + url.PathEscape(id) + "/actions/ping",
		key:    key,
	})
	if err != nil {
		return nil, err
	}
	return c.processFrom(OpPingProcess, doc)
}

func (c *Client) machineFrom(op string, doc *document) (*domain.Machine, error) {
	res, err := c.decodeResource(op, doc, string(domain.ResourceMachines))
	if err != nil {
		return nil, err
	}

	var attrs machineAttributes
	if len(res.Attributes) > 0 {
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return nil, &errors.GatewayError{Operation: op, StatusCode: http.StatusOK,
				Cause: fmt.Errorf("failed to parse machine attributes: %w", err)}
		}
	}

	m := &domain.Machine{
		ID:          res.ID,
		Fingerprint: attrs.Fingerprint,
		Name:        attrs.Name,
		LicenseID:   res.relatedID("license"),
	}
	if err := c.check(op, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) processFrom(op string, doc *document) (*domain.Process, error) {
	res, err := c.decodeResource(op, doc, string(domain.ResourceProcesses))
	if err != nil {
		return nil, err
	}

	var attrs processAttributes
	if len(res.Attributes) > 0 {
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return nil, &errors.GatewayError{Operation: op, StatusCode: http.StatusOK,
				Cause: fmt.Errorf("failed to parse process attributes: %w", err)}
		}
	}

	p := &domain.Process{
		ID:            res.ID,
		PID:           attrs.PID,
		Interval:      attrs.Interval,
		Status:        domain.ProcessStatus(attrs.Status),
		MachineID:     res.relatedID("machine"),
		LastHeartbeat: attrs.LastHeartbeat,
		NextHeartbeat: attrs.NextHeartbeat,
	}
	if err := c.check(op, p); err != nil {
		return nil, err
	}
	return p, nil
}
