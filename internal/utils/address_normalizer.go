package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAddress = errors.New("invalid EVM address")
	ErrZeroAddress    = errors.New("zero address not allowed")

	hex40Pattern = regexp.MustCompile("^[0-9a-fA-F]{40}$")
	hex64Pattern = regexp.MustCompile("^[0-9a-fA-F]{64}$")
)

// IsEvmAddress checks for a 20-byte hex address, with or without 0x
func IsEvmAddress(address string) bool {
	if address == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(address), "0x") {
		return hex40Pattern.MatchString(address[2:])
	}
	return hex40Pattern.MatchString(address)
}

// IsHash32 checks for a 32-byte hex value, with or without 0x
func IsHash32(value string) bool {
	if strings.HasPrefix(strings.ToLower(value), "0x") {
		value = value[2:]
	}
	return hex64Pattern.MatchString(value)
}

// NormalizeAddress lowercases and adds the 0x prefix.
// Values that are not EVM addresses are returned unchanged.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !IsEvmAddress(address) {
		return address
	}
	if strings.HasPrefix(strings.ToLower(address), "0x") {
		return strings.ToLower(address)
	}
	return "0x" + strings.ToLower(address)
}

// ParseAddress parses a participant address; the zero address is rejected
func ParseAddress(address string) (common.Address, error) {
	address = strings.TrimSpace(address)
	if !IsEvmAddress(address) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return common.Address{}, ErrZeroAddress
	}
	return addr, nil
}
