package config

import (
	"fmt"
	"strings"
)

const (
	BackendTone = "tone"
	BackendCLI  = "cli"
	BackendHTTP = "http"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendTone
	}
	switch backend {
	case BackendTone, BackendCLI, BackendHTTP:
		return backend, nil
	case "remote":
		return BackendHTTP, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s|%s)",
			raw,
			BackendTone,
			BackendCLI,
			BackendHTTP,
		)
	}
}
