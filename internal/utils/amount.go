package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals wei per ether exponent
const EtherDecimals = 18

var ErrInvalidAmount = errors.New("invalid amount")

// EtherToWei converts a decimal ether string ("0.01") to wei
func EtherToWei(ether string) (*big.Int, error) {
	return ToBaseUnits(ether, EtherDecimals)
}

// WeiToEther formats wei as a decimal ether string
func WeiToEther(wei *big.Int) string {
	return FromBaseUnits(wei, EtherDecimals)
}

// ToBaseUnits converts a decimal amount to integer base units
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits formats integer base units as a decimal string
func FromBaseUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ParseWei parses a non-negative base-10 integer amount of wei
func ParseWei(value string) (*big.Int, error) {
	wei, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidAmount, value)
	}
	if wei.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, value)
	}
	return wei, nil
}
