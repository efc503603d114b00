package version

import (
	"errors"
	"strconv"
	"strings"
)

// Result of comparing an existing version against a candidate.
type Result int

const (
	Less    Result = -1
	Equal   Result = 0
	Greater Result = 1
)

var (
	// ErrProductMismatch takes precedence over any version comparison.
	ErrProductMismatch = errors.New("candidate package product id does not match the existing app")
	// ErrVersionNotGreater covers both the equal and the downgrade case.
	ErrVersionNotGreater = errors.New("candidate version is not greater than current")
)

// Compare splits both strings on ".", pads the shorter side with zero
// components, and compares component-wise as integers left to right.
// "1.2" and "1.2.0" are Equal; "1.2.0" is Less than "1.10.0".
// Non-numeric components compare as 0.
func Compare(a, b string) Result {
	as := strings.Split(strings.TrimSpace(a), ".")
	bs := strings.Split(strings.TrimSpace(b), ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av := componentAt(as, i)
		bv := componentAt(bs, i)
		if av < bv {
			return Less
		}
		if av > bv {
			return Greater
		}
	}
	return Equal
}

func componentAt(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// CheckUpgrade gates a candidate package against the app it would
// replace. Product identity is checked before version order.
func CheckUpgrade(existingProductID, existingVersion, candidateProductID, candidateVersion string) error {
	if !strings.EqualFold(strings.TrimSpace(existingProductID), strings.TrimSpace(candidateProductID)) {
		return ErrProductMismatch
	}
	if Compare(candidateVersion, existingVersion) != Greater {
		return ErrVersionNotGreater
	}
	return nil
}
