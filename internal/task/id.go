package task

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/pkg/errors"
)

const idTimeLayout = "20060102150405"

var idPattern = regexp.MustCompile(`^\d{14}_[0-9a-f]{4}$`)

// NewID returns a task id made of the second-precision timestamp and four
// random hex characters, e.g. 20240520143000_ab12.
func NewID(at time.Time) (string, error) {
	suffix := make([]byte, 2)
	if _, err := rand.Read(suffix); err != nil {
		return "", errors.WithStack(err)
	}

	return at.Format(idTimeLayout) + "_" + hex.EncodeToString(suffix), nil
}

func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
