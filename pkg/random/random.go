package random

import "math/rand"

// Alphabet is the set of symbols short codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewRandomString returns a string of the given length drawn uniformly from Alphabet.
// math/rand is enough here, codes are not secrets.
func NewRandomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = Alphabet[rand.Intn(len(Alphabet))]
	}
	return string(b)
}
