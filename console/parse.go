package console

import (
	"errors"
	"strconv"

	"nbtwi/core"
)

var (
	ErrBadNumber = errors.New("bad number")
	ErrTooLong   = errors.New("transfer too long")
)

// parseNumber accepts decimal or 0x-prefixed hex
func parseNumber(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, errors.New(ErrBadNumber.Error() + ": " + s)
	}
	return v, nil
}

func parseAddress(s string) (core.I2CAddress, error) {
	v, err := parseNumber(s, 8)
	if err != nil {
		return 0, err
	}
	if core.I2CAddress(v) > core.MaxAddress {
		return 0, core.ErrInvalidAddress
	}
	return core.I2CAddress(v), nil
}

func parseLength(s string) (int, error) {
	v, err := parseNumber(s, 8)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, core.ErrEmptyTransfer
	}
	if v > MaxTransfer {
		return 0, ErrTooLong
	}
	return int(v), nil
}

func parseBytes(args []string) ([]byte, error) {
	if len(args) > MaxTransfer {
		return nil, ErrTooLong
	}

	data := make([]byte, len(args))
	for i, s := range args {
		v, err := parseNumber(s, 8)
		if err != nil {
			return nil, err
		}
		data[i] = byte(v)
	}
	return data, nil
}
