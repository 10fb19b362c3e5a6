package decode

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 结构体字段读取的 tag，默认 "mapstructure"
	TagName string
	// 是否启用宽松解码（默认 true）：
	// 例如 "123" -> int、1.0 -> int64 等。
	WeaklyTypedInput bool
}

// DefaultOptions 返回默认选项。
func DefaultOptions() Options {
	return Options{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	}
}

// Map decodes m onto out, which must be a pointer. Fields already set on out
// are kept unless m carries the key, so callers can pre-fill defaults.
func Map(m map[string]any, out any, opts ...Options) error {
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}
	if cfg.TagName == "" {
		cfg.TagName = "mapstructure"
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          cfg.TagName,
		Result:           out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			byteSizeHook(),
			stringToStringSliceHook(),
			floatToIntHook(),
			sliceAnyToSliceStringHook(),
		),
	})
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// -----------------------------
// Decode Hooks
// -----------------------------

// floatToIntHook：把 float64 自动转为 int / int32 / int64。
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}

var stringSliceType = reflect.TypeOf([]string(nil))

// sliceAnyToSliceStringHook：目标是 []string 时把 []any 逐项转成字符串。
func sliceAnyToSliceStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != stringSliceType {
			return data, nil
		}
		src, ok := data.([]any)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(src))
		for _, it := range src {
			switch v := it.(type) {
			case string:
				out = append(out, v)
			case json.Number:
				out = append(out, v.String())
			default:
				b, _ := json.Marshal(v)
				out = append(out, string(b))
			}
		}
		return out, nil
	}
}

// stringToStringSliceHook splits "a,b" (env style) into []string.
func stringToStringSliceHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != stringSliceType {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if s == "" {
			return []string{}, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"KiB", 1 << 10}, {"MiB", 1 << 20}, {"GiB", 1 << 30},
	{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000},
	{"B", 1},
}

// byteSizeHook：把 "10MiB" / "512KB" 之类的字符串转成整数字节数。
func byteSizeHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}
		switch to.Kind() {
		case reflect.Int, reflect.Int64:
		default:
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		for _, u := range sizeUnits {
			if !strings.HasSuffix(s, u.suffix) {
				continue
			}
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 10, 64)
			if err != nil {
				return data, nil
			}
			return n * u.mult, nil
		}
		return data, nil
	}
}
