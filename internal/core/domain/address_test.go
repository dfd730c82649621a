package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {

	require := require.New(t)

	addr, err := ParseAddress("3:200")
	require.NoError(err)
	require.Equal(Address{Main: 3, Sub: 200}, addr)
	require.Equal("3:200", addr.String())

	addr, err = ParseAddress("7:255")
	require.NoError(err)
	require.Equal(Address{Main: 7, Sub: 255}, addr, "upper bounds are valid")

	addr, err = ParseAddress("0:0")
	require.NoError(err)
	require.Equal(Address{}, addr, "lower bounds are valid")
}

func TestValidateAddressRejects(t *testing.T) {

	invalid := []string{
		"8:0",
		"3:256",
		"abc",
		"",
		":",
		"3:",
		":5",
		"-1:5",
		"3:-5",
		"+3:5",
		"3:5:1",
		" 3:5",
		"3 :5",
		"3:99999999999999999999",
	}
	for _, addr := range invalid {
		assert.ErrorIs(t, ValidateAddress(addr), ErrInvalidAddressFormat, "address %q must be rejected", addr)
	}
}

func TestValidateAddressExhaustive(t *testing.T) {

	for main := 0; main <= 9; main++ {
		for _, sub := range []int{0, 1, 128, 255, 256, 1000} {
			err := ValidateAddress(fmt.Sprintf("%d:%d", main, sub))
			if main <= ADDRESS_MAIN_MAX && sub <= ADDRESS_SUB_MAX {
				assert.NoError(t, err, "%d:%d", main, sub)
			} else {
				assert.ErrorIs(t, err, ErrInvalidAddressFormat, "%d:%d", main, sub)
			}
		}
	}
}
