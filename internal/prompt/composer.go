// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package prompt builds provider prompts from named templates.
package prompt

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/MadsRC/sixlab"
)

// Composer resolves templates by name and fills in their {placeholder} markers.
type Composer struct {
	templates sixlab.PromptTemplates
}

// New creates a Composer over a copy of templates.
func New(templates sixlab.PromptTemplates) *Composer {
	return &Composer{templates: maps.Clone(templates)}
}

// Has reports whether a template called name exists.
func (c *Composer) Has(name string) bool {
	_, ok := c.templates[name]
	return ok
}

// Build returns the template called name with every {key} replaced by the
// matching string or numeric value of vars. It returns "" for an unknown
// template. Other value types leave their placeholders untouched. The
// replacement is a single pass, so substituted values are never rescanned.
func (c *Composer) Build(name string, vars sixlab.Context) string {
	tmpl, ok := c.templates[name]
	if !ok {
		return ""
	}
	return Render(tmpl, vars)
}

// Render fills the placeholders of tmpl from vars.
func Render(tmpl string, vars sixlab.Context) string {
	if len(vars) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}

	keys := slices.Sorted(maps.Keys(vars))
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		v, ok := formatValue(vars[k])
		if !ok {
			continue
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	if len(pairs) == 0 {
		return tmpl
	}

	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func formatValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint8:
		return strconv.FormatUint(uint64(t), 10), true
	case uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
