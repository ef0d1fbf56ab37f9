package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AddressKey is the canonical entity id for an address: lowercase 0x hex.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// ParseAddressKey validates a hex address and returns its canonical id.
func ParseAddressKey(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return "", fmt.Errorf("invalid address: %q", input)
	}
	return AddressKey(common.HexToAddress(input)), nil
}
