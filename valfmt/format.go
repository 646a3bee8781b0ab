// Copyright © 2018 The ELPS authors

// Package valfmt renders single values for a variables view. It produces the
// type label and the literal representation of any Go value, honoring the
// client supplied value format (currently only hexadecimal integers).
package valfmt

import (
	"strconv"
	"strings"
)

// Format holds the value formatting options requested by a client. The zero
// value renders integers in decimal.
type Format struct {
	Hex bool
}

// Decimal is the default format.
var Decimal = Format{}

// FromOptions builds a Format from a loosely typed option map, as sent by
// protocol clients. Only "hex" is recognized; any other key is ignored and
// values that cannot be read as booleans leave the default in place.
func FromOptions(opts map[string]any) Format {
	var f Format
	for k, v := range opts {
		if !strings.EqualFold(k, "hex") {
			continue
		}
		switch x := v.(type) {
		case bool:
			f.Hex = x
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				f.Hex = b
			}
		case int:
			f.Hex = x != 0
		}
	}
	return f
}

func formatInt(i int64, f Format) string {
	if !f.Hex {
		return strconv.FormatInt(i, 10)
	}
	if i < 0 {
		return "-0x" + strconv.FormatUint(uint64(-i), 16)
	}
	return "0x" + strconv.FormatInt(i, 16)
}

func formatUint(u uint64, f Format) string {
	if !f.Hex {
		return strconv.FormatUint(u, 10)
	}
	return "0x" + strconv.FormatUint(u, 16)
}
