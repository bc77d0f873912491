// Package randutil implements random utilities.
package randutil

import (
	"math/rand"
	"time"
)

const ll = "0123456789abcdefghijklmnopqrstuvwxyz"

var rnd = rand.New(rand.NewSource(time.Now().UnixNano()))

func String(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ll[rnd.Intn(len(ll))]
	}
	return string(b)
}
