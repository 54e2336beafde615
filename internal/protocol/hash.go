package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ScoreCanonical builds the canonical string the backend hashes to verify a
// score submission: startScore, index, indexTime, syncState, ftn, score and
// the session token concatenated with no separators. The server recomputes
// the same digest, so stringification is bit-exact: numbers use the shortest
// decimal form and booleans are lowercase.
func ScoreCanonical(startScore float64, index int, indexTime string, syncState bool, ftn string, score int, sessionToken string) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(startScore, 'f', -1, 64))
	sb.WriteString(strconv.Itoa(index))
	sb.WriteString(indexTime)
	sb.WriteString(strconv.FormatBool(syncState))
	sb.WriteString(ftn)
	sb.WriteString(strconv.Itoa(score))
	sb.WriteString(sessionToken)
	return sb.String()
}

// Digest returns the lowercase hex SHA-256 of the canonical string.
func Digest(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
