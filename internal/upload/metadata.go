package upload

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ParseMetadata decodes an Upload-Metadata header value: comma-separated
// key/value pairs, the value base64-encoded and optional.
func ParseMetadata(header string) (map[string]string, error) {
	meta := make(map[string]string)
	if strings.TrimSpace(header) == "" {
		return meta, nil
	}
	for _, pair := range strings.Split(header, ",") {
		parts := strings.Fields(strings.TrimSpace(pair))
		if len(parts) == 0 || len(parts) > 2 {
			return nil, fmt.Errorf("malformed metadata pair %q", pair)
		}
		key := parts[0]
		if key == "" {
			return nil, fmt.Errorf("malformed metadata pair %q", pair)
		}
		var value string
		if len(parts) == 2 {
			decoded, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				return nil, fmt.Errorf("metadata value for %q is not base64: %w", key, err)
			}
			value = string(decoded)
		}
		meta[key] = value
	}
	return meta, nil
}

// EncodeMetadata renders metadata back into Upload-Metadata header form.
func EncodeMetadata(meta map[string]string) string {
	pairs := make([]string, 0, len(meta))
	for k, v := range meta {
		if v == "" {
			pairs = append(pairs, k)
			continue
		}
		pairs = append(pairs, k+" "+base64.StdEncoding.EncodeToString([]byte(v)))
	}
	return strings.Join(pairs, ",")
}
