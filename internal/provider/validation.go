// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package provider

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/MadsRC/sixlab"
)

// ValidateConfig checks cfg against fields in declaration order and returns
// the first problem found. A required field that is absent or empty yields
// sixlab.ErrRequiredFieldMissing; a violated rule yields
// sixlab.ErrValidationFailed. Optional empty fields are not checked further.
func ValidateConfig(fields []sixlab.ConfigField, cfg sixlab.ProviderConfig) error {
	for _, f := range fields {
		rules := splitRules(f.Validation)
		value, present := cfg[f.Name]
		empty := !present || sixlab.IsEmptyValue(value)

		if empty {
			if f.Required || slices.Contains(rules, "required") {
				return &sixlab.FieldError{Field: f.Name, Rule: "required", Err: sixlab.ErrRequiredFieldMissing}
			}
			continue
		}

		for _, rule := range rules {
			if !checkRule(f, rule, value) {
				return &sixlab.FieldError{Field: f.Name, Rule: rule, Err: sixlab.ErrValidationFailed}
			}
		}

		if f.Type == sixlab.FieldTypeSelect && len(f.Options) > 0 && !slices.Contains(f.Options, fmt.Sprint(value)) {
			return &sixlab.FieldError{Field: f.Name, Rule: "options", Err: sixlab.ErrValidationFailed}
		}
	}
	return nil
}

func splitRules(validation string) []string {
	var rules []string
	for r := range strings.SplitSeq(validation, "|") {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}
	return rules
}

func checkRule(f sixlab.ConfigField, rule string, value any) bool {
	name, arg, _ := strings.Cut(rule, ":")
	switch name {
	case "required":
		return true
	case "numeric":
		_, ok := sixlab.ToFloat(value)
		return ok
	case "integer":
		n, ok := sixlab.ToFloat(value)
		return ok && n == math.Trunc(n)
	case "url":
		s, ok := value.(string)
		if !ok {
			return false
		}
		u, err := url.Parse(s)
		return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	case "email":
		s, ok := value.(string)
		if !ok {
			return false
		}
		addr, err := mail.ParseAddress(s)
		return err == nil && addr.Address == s
	case "min", "max":
		bound, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return false
		}
		measure, ok := measureValue(f, value)
		if !ok {
			return false
		}
		if name == "min" {
			return measure >= bound
		}
		return measure <= bound
	case "in":
		if arg == "" {
			return false
		}
		return slices.Contains(strings.Split(arg, ","), fmt.Sprint(value))
	default:
		return false
	}
}

// measureValue returns the number min and max compare against: the value of
// numeric fields and numbers, the rune length of anything else.
func measureValue(f sixlab.ConfigField, value any) (float64, bool) {
	s, isString := value.(string)
	if !isString || f.Type == sixlab.FieldTypeNumber {
		return sixlab.ToFloat(value)
	}
	return float64(utf8.RuneCountInString(s)), true
}
