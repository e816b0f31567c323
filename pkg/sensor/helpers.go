package sensor

import (
	"fmt"
	"sort"
)

// ProxRate is the value of the proximity rate register.
type ProxRate byte

const (
	ProxRate2   ProxRate = 0x00 // 1.95 measurements/s
	ProxRate4   ProxRate = 0x01 // 3.90625
	ProxRate8   ProxRate = 0x02 // 7.8125
	ProxRate16  ProxRate = 0x03 // 16.625
	ProxRate31  ProxRate = 0x04 // 31.25
	ProxRate62  ProxRate = 0x05 // 62.5
	ProxRate125 ProxRate = 0x06 // 125
	ProxRate250 ProxRate = 0x07 // 250
)

// LEDCurrent is the value of the IR LED current register, in 10 mA steps.
type LEDCurrent byte

const (
	LEDCurrent0  LEDCurrent = 0
	LEDCurrent10 LEDCurrent = 1
	LEDCurrent20 LEDCurrent = 2
	LEDCurrent30 LEDCurrent = 3
	LEDCurrent40 LEDCurrent = 4
)

var proxRates = map[int]ProxRate{
	2:   ProxRate2,
	4:   ProxRate4,
	8:   ProxRate8,
	16:  ProxRate16,
	31:  ProxRate31,
	62:  ProxRate62,
	125: ProxRate125,
	250: ProxRate250,
}

var ledCurrents = map[int]LEDCurrent{
	0:  LEDCurrent0,
	10: LEDCurrent10,
	20: LEDCurrent20,
	30: LEDCurrent30,
	40: LEDCurrent40,
}

// RateCode maps a nominal rate in measurements per second to its register code.
func RateCode(perSecond int) (ProxRate, error) {
	code, ok := proxRates[perSecond]
	if !ok {
		return 0, fmt.Errorf("unsupported proximity rate %d (supported: %v)", perSecond, keys(proxRates))
	}
	return code, nil
}

// CurrentCode maps an IR LED current in mA to its register code.
func CurrentCode(mA int) (LEDCurrent, error) {
	code, ok := ledCurrents[mA]
	if !ok {
		return 0, fmt.Errorf("unsupported led current %d mA (supported: %v)", mA, keys(ledCurrents))
	}
	return code, nil
}

func keys[V any](m map[int]V) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
