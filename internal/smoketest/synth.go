// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smoketest

import "github.com/tidwall/gjson"

// SynthesizeArgs builds placeholder arguments from a tool's JSON input schema.
// Every declared property gets a value: the first enum member when one is
// declared, otherwise a fixed placeholder per type. Nested objects are not
// recursed into; they get an empty object.
func SynthesizeArgs(rawSchema []byte) map[string]any {
	args := make(map[string]any)
	if len(rawSchema) == 0 {
		return args
	}
	props := gjson.GetBytes(rawSchema, "properties")
	if !props.IsObject() {
		return args
	}
	props.ForEach(func(key, prop gjson.Result) bool {
		args[key.String()] = placeholderFor(prop)
		return true
	})
	return args
}

func placeholderFor(prop gjson.Result) any {
	if enum := prop.Get("enum"); enum.IsArray() {
		if values := enum.Array(); len(values) > 0 {
			return values[0].Value()
		}
	}
	switch prop.Get("type").String() {
	case "string":
		return "test"
	case "integer", "number":
		return 1
	case "boolean":
		return true
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default:
		return "test"
	}
}
