package cryptodev

import (
	"slices"

	"github.com/marmos91/dittoaccel/pkg/accel"
)

// Supported drivers.
const (
	DriverAESNIMB = "crypto_aesni_mb"
	DriverQAT     = "crypto_qat"
	DriverMLX5    = "mlx5_pci"
)

// DefaultDriver is used when neither the key nor the configuration names
// one.
const DefaultDriver = DriverAESNIMB

type driver struct {
	name    string
	ciphers []string
	// xtsKeySizes lists the accepted AES_XTS key sizes per component.
	xtsKeySizes []int
}

var drivers = map[string]driver{
	DriverAESNIMB: {name: DriverAESNIMB, ciphers: []string{accel.CipherAESCBC, accel.CipherAESXTS}, xtsKeySizes: []int{16, 32}},
	DriverQAT:     {name: DriverQAT, ciphers: []string{accel.CipherAESCBC, accel.CipherAESXTS}, xtsKeySizes: []int{16, 32}},
	DriverMLX5:    {name: DriverMLX5, ciphers: []string{accel.CipherAESXTS}, xtsKeySizes: []int{16, 32}},
}

// Drivers returns the supported driver names.
func Drivers() []string {
	return []string{DriverAESNIMB, DriverQAT, DriverMLX5}
}

func lookupDriver(name string) (driver, bool) {
	d, ok := drivers[name]
	return d, ok
}

func (d driver) supports(cipher string) bool {
	return slices.Contains(d.ciphers, cipher)
}
