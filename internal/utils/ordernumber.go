package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderNumber returns a human facing number such as ORD-20261018-101500-0427.
func GenerateOrderNumber() string {
	return orderNumberAt(time.Now().UTC())
}

func orderNumberAt(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 10000)
	}

	return fmt.Sprintf(
		"ORD-%s-%04d",
		now.Format("20060102-150405"),
		n.Int64(),
	)
}
