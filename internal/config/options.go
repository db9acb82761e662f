// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyOptions applies a startup option string of the form
// "SOURCE=ec0.s1.AI_1;NFFT=1024;MODE=TRIG". Keys are case-insensitive and
// empty entries are ignored. Recognised keys:
//
//	DBG_PRINT   debug logging (0/1)
//	SOURCE      data source identifier
//	NFFT        window length
//	APPLY_SCALE scale the spectrum by 1/nfft (0/1)
//	DC_REMOVE   subtract the window mean (0/1)
//	ENABLE      initial enable state (0/1)
//	MODE        CONT or TRIG (also 1 or 2)
//
// The result is not validated; call Validate afterwards.
func (c *Config) ApplyOptions(opts string) error {
	for _, entry := range strings.Split(opts, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, val, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("option '%s': expected KEY=VALUE", entry)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		if err := c.applyOption(key, val); err != nil {
			return fmt.Errorf("option %s=%s: %w", key, val, err)
		}
	}
	return nil
}

func (c *Config) applyOption(key, val string) (err error) {
	switch key {
	case "DBG_PRINT":
		c.Debug, err = strconv.ParseBool(val)
	case "SOURCE":
		if val == "" {
			return fmt.Errorf("empty data source identifier")
		}
		c.Source.Name = val
	case "NFFT":
		c.FFT.NFFT, err = strconv.Atoi(val)
	case "APPLY_SCALE":
		c.FFT.ApplyScale, err = strconv.ParseBool(val)
	case "DC_REMOVE":
		c.FFT.DCRemove, err = strconv.ParseBool(val)
	case "ENABLE":
		c.FFT.Enable, err = strconv.ParseBool(val)
	case "MODE":
		c.FFT.Mode = val
	default:
		err = fmt.Errorf("unknown option")
	}
	return err
}
