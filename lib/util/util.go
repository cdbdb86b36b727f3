// Package util contains helper functions used around the code.
package util

import (
	"errors"
	"strconv"
)

// ErrBadID is returned by ParseID for anything but a positive integer.
var ErrBadID = errors.New("id must be a positive integer")

// In returns true if s is found in ss, false otherwise
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}

	return false
}

// ParseID parses a record id taken from a request path.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadID
	}

	return id, nil
}
