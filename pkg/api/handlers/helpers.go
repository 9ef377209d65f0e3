package handlers

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/youngmoe/obsync/pkg/auth"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// authEmail resolves the body-carried token to the caller's email. Returns
// ok=false after writing a 401 when the token does not verify.
func authEmail(w http.ResponseWriter, tokens *auth.TokenService, token string) (string, bool) {
	email, err := tokens.Email(token)
	if err != nil {
		Unauthorized(w, "Invalid token")
		return "", false
	}
	return email, true
}

const (
	passwordLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordDigits  = "0123456789"
	passwordSymbols = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// generatePassword builds a random string of the given length containing
// numDigits digits and numSymbols symbols, the rest letters. Used for the
// server-side vault password when the client supplies no encryption salt.
func generatePassword(length, numDigits, numSymbols int) string {
	out := make([]byte, 0, length)
	for i := 0; i < length-numDigits-numSymbols; i++ {
		out = append(out, randomByte(passwordLetters))
	}
	for i := 0; i < numDigits; i++ {
		out = append(out, randomByte(passwordDigits))
	}
	for i := 0; i < numSymbols; i++ {
		out = append(out, randomByte(passwordSymbols))
	}
	// Fisher-Yates so the digit and symbol positions are not predictable.
	for i := len(out) - 1; i > 0; i-- {
		j := randomInt(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func randomByte(alphabet string) byte {
	return alphabet[randomInt(len(alphabet))]
}

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		panic(err)
	}
	return int(v.Int64())
}
