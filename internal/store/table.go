package store

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	tablePrefix        = "api_cache_"
	plainSuffix        = "_responses"
	compressedSuffix   = "_responses_compressed"
	maxSanitizedClient = 33
)

// Client names must be ASCII alphanumerics and dashes; anything else
// (spaces, dots, unicode) is rejected rather than silently mangled.
var validClientName = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// NamingError reports a client name that cannot be mapped to a table.
type NamingError struct {
	Client string
	Reason string
}

func (e *NamingError) Error() string {
	return fmt.Sprintf("store: invalid client name %q: %s", e.Client, e.Reason)
}

// TableHandle addresses one physical table of a client's pair. It is a pure
// value derived from (client, compressed); passing it explicitly keeps table
// identity out of ambient configuration.
type TableHandle struct {
	Client     string
	Compressed bool

	sanitized string
}

// NewTableHandle validates the client name and binds it to one physical
// variant.
func NewTableHandle(client string, compressed bool) (TableHandle, error) {
	sanitized, err := sanitizeClient(client)
	if err != nil {
		return TableHandle{}, err
	}
	return TableHandle{Client: client, Compressed: compressed, sanitized: sanitized}, nil
}

// HandleFor resolves a client's active table. A nil override means "use the
// client's configured policy"; a non-nil override addresses the other
// variant regardless of policy.
func HandleFor(client string, compressionEnabled bool, override *bool) (TableHandle, error) {
	compressed := compressionEnabled
	if override != nil {
		compressed = *override
	}
	return NewTableHandle(client, compressed)
}

// Name returns the physical table identifier, e.g. client "data-for-seo"
// compressed maps to "api_cache_data_for_seo_responses_compressed".
func (h TableHandle) Name() string {
	suffix := plainSuffix
	if h.Compressed {
		suffix = compressedSuffix
	}
	return tablePrefix + h.sanitized + suffix
}

// Sibling returns the handle for the other physical variant of the same
// client.
func (h TableHandle) Sibling() TableHandle {
	h.Compressed = !h.Compressed
	return h
}

func sanitizeClient(client string) (string, error) {
	if client == "" {
		return "", &NamingError{Client: client, Reason: "empty"}
	}
	if !validClientName.MatchString(client) {
		return "", &NamingError{Client: client, Reason: "must contain only ASCII letters, digits and dashes"}
	}

	sanitized := strings.ToLower(client)
	sanitized = strings.ReplaceAll(sanitized, "-", "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	if len(sanitized) > maxSanitizedClient {
		sanitized = sanitized[:maxSanitizedClient]
	}
	return sanitized, nil
}
