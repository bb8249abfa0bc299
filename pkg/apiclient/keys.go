package apiclient

// CryptoKey describes a live key without its material.
type CryptoKey struct {
	Name    string `json:"name"`
	Cipher  string `json:"cipher"`
	Module  string `json:"module"`
	Driver  string `json:"driver,omitempty"`
	HasKey2 bool   `json:"has_key2"`
}

// CreateCryptoKeyRequest creates a key. Key and Key2 are hex encoded; an
// empty Module selects the module assigned to encrypt.
type CreateCryptoKeyRequest struct {
	Name   string `json:"name"`
	Cipher string `json:"cipher"`
	Key    string `json:"key"`
	Key2   string `json:"key2,omitempty"`
	Driver string `json:"driver,omitempty"`
	Module string `json:"module,omitempty"`
}

// ListCryptoKeys returns the keyring in creation order.
func (c *Client) ListCryptoKeys() ([]CryptoKey, error) {
	return listResources[CryptoKey](c, "/api/v1/accel/crypto-keys")
}

// CreateCryptoKey creates a key.
func (c *Client) CreateCryptoKey(req *CreateCryptoKeyRequest) (*CryptoKey, error) {
	return createResource[CryptoKey](c, "/api/v1/accel/crypto-keys", req)
}

// DeleteCryptoKey destroys the key called name.
func (c *Client) DeleteCryptoKey(name string) error {
	return deleteResource(c, resourcePath("/api/v1/accel/crypto-keys/%s", name))
}
