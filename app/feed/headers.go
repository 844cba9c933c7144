package feed

import "strings"

// HeaderParams returns the parameters of a Content-Type style header value.
// The primary value before the first ';' is not part of the result.
func HeaderParams(header string) map[string]string {
	params := make(map[string]string)

	segments := strings.Split(header, ";")
	for _, segment := range segments[1:] {
		key, value, _ := strings.Cut(segment, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		params[key] = strings.TrimSpace(value)
	}

	return params
}
