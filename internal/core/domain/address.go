package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ADDRESS_MAIN_MAX = 7
	ADDRESS_SUB_MAX  = 255
)

// Address locates a state on the bus as main:sub.
type Address struct {
	Main uint8
	Sub  uint8
}

func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.Main, a.Sub)
}

func ParseAddress(s string) (Address, error) {
	mainPart, subPart, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, ErrInvalidAddressFormat
	}
	main, err := parseAddressPart(mainPart, ADDRESS_MAIN_MAX)
	if err != nil {
		return Address{}, err
	}
	sub, err := parseAddressPart(subPart, ADDRESS_SUB_MAX)
	if err != nil {
		return Address{}, err
	}
	return Address{Main: main, Sub: sub}, nil
}

func ValidateAddress(s string) error {
	_, err := ParseAddress(s)
	return err
}

func parseAddressPart(s string, max uint64) (uint8, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, ErrInvalidAddressFormat
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || v > max {
		return 0, ErrInvalidAddressFormat
	}
	return uint8(v), nil
}
