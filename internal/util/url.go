package util

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidWebhookURL = errors.New("url must be an absolute http(s) url")

// ValidateWebhookURL trims s and checks it is an absolute http or https URL
// with a host. It returns the trimmed form.
func ValidateWebhookURL(s string) (string, error) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", ErrInvalidWebhookURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidWebhookURL
	}
	return s, nil
}
