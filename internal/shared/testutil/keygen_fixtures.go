package testutil

import "fmt"

// Response bodies in the shape the licensing service returns them.

// ValidationDocument is a validate-key response for licenseID
func ValidationDocument(valid bool, code, detail, licenseID string) string {
	data := "null"
	if licenseID != "" {
		data = fmt.Sprintf(`{"id": %q, "type": "licenses"}`, licenseID)
	}
	return fmt.Sprintf(`{"meta": {"valid": %t, "detail": %q, "code": %q}, "data": %s}`, valid, detail, code, data)
}

// MachineDocument is a machine resource owned by licenseID
func MachineDocument(id, fingerprint, licenseID string) string {
	return fmt.Sprintf(`{"data": {"id": %q, "type": "machines", "attributes": {"fingerprint": %q},
		"relationships": {"license": {"data": {"type": "licenses", "id": %q}}}}}`, id, fingerprint, licenseID)
}

// ProcessDocument is an alive process resource on machineID
func ProcessDocument(id, pid, machineID string, interval int) string {
	return fmt.Sprintf(`{"data": {"id": %q, "type": "processes", "attributes": {"pid": %q, "status": "ALIVE", "interval": %d},
		"relationships": {"machine": {"data": {"type": "machines", "id": %q}}}}}`, id, pid, interval, machineID)
}

// ErrorDocument is an error envelope with a single entry
func ErrorDocument(title, detail, code string) string {
	return fmt.Sprintf(`{"errors": [{"title": %q, "detail": %q, "code": %q}]}`, title, detail, code)
}
