package apiclient

import "encoding/json"

// Module is a registered accel module.
type Module struct {
	Name    string   `json:"module"`
	Opcodes []string `json:"supported_ops"`
}

// Assignment maps one opcode to the module serving it.
type Assignment struct {
	Opcode   string `json:"opcode"`
	Module   string `json:"module"`
	Override bool   `json:"override"`
}

// ConfigEntry is one replayable configuration call.
type ConfigEntry struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Health is the envelope of the health endpoints.
type Health struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ListModules returns the registered modules in registration order.
func (c *Client) ListModules() ([]Module, error) {
	return listResources[Module](c, "/api/v1/accel/modules")
}

// ListAssignments returns the opcode table in opcode order.
func (c *Client) ListAssignments() ([]Assignment, error) {
	return listResources[Assignment](c, "/api/v1/accel/assignments")
}

// ConfigDump returns the replayable configuration, key material included.
func (c *Client) ConfigDump() ([]ConfigEntry, error) {
	return listResources[ConfigEntry](c, "/api/v1/config")
}

// Health calls the liveness probe.
func (c *Client) Health() (*Health, error) {
	return getResource[Health](c, "/health")
}

// Ready calls the readiness probe. An unready server returns an
// *APIError with status 503.
func (c *Client) Ready() (*Health, error) {
	return getResource[Health](c, "/health/ready")
}
