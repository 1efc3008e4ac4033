package models

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxDescription = 1024

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return nil
}

func maxLength(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return invalid(field, "longer than "+strconv.Itoa(limit)+" characters")
	}
	return nil
}

func optionalRef(field string, id *string) error {
	if id != nil && strings.TrimSpace(*id) == "" {
		return invalid(field, "must not be empty when set")
	}
	return nil
}

func joinText(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
