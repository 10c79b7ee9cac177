package memory

import "github.com/google/uuid"

// newID generates a new entity id. Returns an error only in the
// astronomically unlikely event the platform RNG is unavailable.
func newID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
