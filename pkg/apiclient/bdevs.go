package apiclient

// Bdev describes a block device.
type Bdev struct {
	Name        string `json:"name"`
	UUID        string `json:"uuid"`
	ProductName string `json:"product_name"`
	BlockSize   uint32 `json:"block_size"`
	NumBlocks   uint64 `json:"num_blocks"`
	ClaimedBy   string `json:"claimed_by,omitempty"`
}

// CreateCryptoBdevRequest creates a crypto bdev over BaseBdev. Either
// KeyName names an existing key or Cipher and Key describe one the device
// creates and owns.
type CreateCryptoBdevRequest struct {
	Name     string `json:"name"`
	BaseBdev string `json:"base_bdev_name"`
	KeyName  string `json:"key_name,omitempty"`
	Cipher   string `json:"cipher,omitempty"`
	Key      string `json:"key,omitempty"`
	Key2     string `json:"key2,omitempty"`
	Driver   string `json:"crypto_pmd,omitempty"`
	Module   string `json:"module,omitempty"`
	Channels int    `json:"channels,omitempty"`
}

// ListBdevs returns every block device sorted by name.
func (c *Client) ListBdevs() ([]Bdev, error) {
	return listResources[Bdev](c, "/api/v1/bdevs")
}

// CreateCryptoBdev creates a crypto bdev.
func (c *Client) CreateCryptoBdev(req *CreateCryptoBdevRequest) (*Bdev, error) {
	return createResource[Bdev](c, "/api/v1/bdevs/crypto", req)
}

// DeleteCryptoBdev deletes the crypto bdev called name and waits for it to
// close.
func (c *Client) DeleteCryptoBdev(name string) error {
	return deleteResource(c, resourcePath("/api/v1/bdevs/crypto/%s", name))
}
