package utils

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	resetCodeMin = 100000
	resetCodeMax = 999999
)

// NewResetCode returns a uniformly random 6-digit code in [100000, 999999].
func NewResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeMax-resetCodeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+resetCodeMin, 10), nil
}
