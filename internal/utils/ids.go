package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateNanoIDWithPrefix produces ids like "email_k3j2...", used as
// primary keys across all models.
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(idAlphabet, length)
	if err != nil {
		panic(fmt.Sprintf("nanoid generation failed: %v", err))
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}
