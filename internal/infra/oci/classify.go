package oci

import (
	"errors"
	"net/http"
	"strings"

	domainerrors "github.com/qudata/control/internal/domain/errors"
)

// APIError is the provider's machine-readable failure payload.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return "provider error " + e.Code + ": " + e.Message
	}
	return "provider error: " + e.Message
}

// Category is the orchestrator-facing classification of a provider
// failure. Classification drives fallback and drift handling, so it
// lives in exactly one place; the matched codes and substrings are
// pinned by tests against the provider's documented vocabulary.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryCapacity
	CategoryIncompatible
)

func Classify(err error) Category {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return CategoryUnknown
	}

	switch {
	case apiErr.Status == http.StatusNotFound,
		apiErr.Code == "NotAuthorizedOrNotFound":
		return CategoryNotFound
	case apiErr.Code == "OutOfHostCapacity",
		containsFold(apiErr.Message, "out of host capacity"),
		containsFold(apiErr.Message, "out of capacity"):
		return CategoryCapacity
	case apiErr.Code == "InvalidParameter" && containsFold(apiErr.Message, "shape"),
		containsFold(apiErr.Message, "not valid for the image"),
		containsFold(apiErr.Message, "not supported for the image"):
		return CategoryIncompatible
	default:
		return CategoryUnknown
	}
}

// wrapClassified turns a raw API error into its typed domain error so
// the usecase layer can match on taxonomy without seeing provider
// strings.
func wrapClassified(err error) error {
	switch Classify(err) {
	case CategoryNotFound:
		return domainerrors.ProviderNotFoundError{Err: err}
	case CategoryCapacity:
		return domainerrors.ProviderCapacityError{Err: err}
	case CategoryIncompatible:
		return domainerrors.ProviderIncompatibleError{Err: err}
	default:
		return err
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
