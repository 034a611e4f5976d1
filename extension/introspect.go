package extension

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/agentcmd/types"
)

// Parameter names that never appear in a schema: the implicit receiver and
// the catch-all parameters.
const (
	ReceiverParam      = "self"
	CatchAllParam      = "kwargs"
	CatchAllPositional = "args"
)

func isImplicitParam(name string) bool {
	switch name {
	case ReceiverParam, CatchAllParam, CatchAllPositional:
		return true
	}
	return false
}

var durationType = reflect.TypeOf(time.Duration(0))

// Describe returns the parameter schema of a command. Whether the handler
// blocks or not makes no difference: only declarations are inspected.
func Describe(cmd Command) types.ParamSchema {
	if cmd.argsType != nil {
		return describeStruct(cmd.argsType, "json")
	}
	return normalize(cmd.Params)
}

// DescribeSettings returns the settings schema of an extension implementing
// Configurable, or nil.
func DescribeSettings(ext Extension) types.ParamSchema {
	c, ok := ext.(Configurable)
	if !ok {
		return nil
	}
	proto := c.SettingsPrototype()
	if proto == nil {
		return nil
	}
	schema := describeStruct(reflect.TypeOf(proto), "yaml")
	// Current field values act as defaults when no default tag is given.
	v := reflect.Indirect(reflect.ValueOf(proto))
	if v.Kind() != reflect.Struct {
		return schema
	}
	for i, p := range schema {
		if p.Default != nil {
			continue
		}
		if f, ok := fieldByTag(v, "yaml", p.Name); ok && !f.IsZero() {
			schema[i].Default = f.Interface()
		}
	}
	return schema
}

// normalize drops implicit and duplicate parameters, keeping first
// declarations.
func normalize(params []types.Param) types.ParamSchema {
	out := make(types.ParamSchema, 0, len(params))
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if p.Name == "" || isImplicitParam(p.Name) {
			continue
		}
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	return out
}

func describeStruct(t reflect.Type, tagKey string) types.ParamSchema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return types.ParamSchema{}
	}
	var params []types.Param
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			params = append(params, describeStruct(f.Type, tagKey)...)
			continue
		}
		if !f.IsExported() {
			continue
		}
		name, ok := tagName(f, tagKey)
		if !ok {
			continue
		}
		var def any
		if raw, has := f.Tag.Lookup("default"); has {
			def = parseDefault(f.Type, raw)
		}
		params = append(params, types.Param{Name: name, Default: def})
	}
	return normalize(params)
}

func tagName(f reflect.StructField, tagKey string) (string, bool) {
	tag := f.Tag.Get(tagKey)
	if tag == "-" {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
		if tagKey == "yaml" {
			name = strings.ToLower(name)
		}
	}
	return name, true
}

func fieldByTag(v reflect.Value, tagKey, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			if fv, ok := fieldByTag(v.Field(i), tagKey, name); ok {
				return fv, true
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		if n, ok := tagName(f, tagKey); ok && n == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// parseDefault converts a default tag to a value of the field's kind. Values
// that do not parse are kept as strings. Durations are written as "5s" and
// stored as nanoseconds, which is how encoding/json decodes time.Duration.
func parseDefault(t reflect.Type, raw string) any {
	if t == durationType {
		if d, err := time.ParseDuration(raw); err == nil {
			return int64(d)
		}
		return raw
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, t.Bits()); err == nil {
			return int(n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, err := strconv.ParseUint(raw, 10, t.Bits()); err == nil {
			return n
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			out := make([]any, len(parts))
			for i := range parts {
				out[i] = strings.TrimSpace(parts[i])
			}
			return out
		}
	}
	return raw
}
