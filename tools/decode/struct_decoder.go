package decode

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 是否启用宽松解码（默认 true）：例如 "123" -> int、1.0 -> int64 等。
	WeaklyTypedInput bool
	// 读取字段使用的 tag，默认 "json"
	TagName string
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
		TagName:          "json",
	}
}

// Map decodes a loosely typed document (JSON object, BSON document, ...)
// into T using T's struct tags.
func Map[T any](m map[string]any, opts ...Options) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("map is nil")
	}
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
		if cfg.TagName == "" {
			cfg.TagName = "json"
		}
	}

	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          cfg.TagName,
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringerToStringHook(),
			timeHook(),
			floatToIntHook(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return &out, nil
}

// -----------------------------
// Decode Hooks
// -----------------------------

var timeType = reflect.TypeOf(time.Time{})

// stringerToStringHook: ObjectID 一类实现了 fmt.Stringer / Hex 的值转 string。
func stringerToStringHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to.Kind() != reflect.String || from.Kind() == reflect.String {
			return data, nil
		}
		if h, ok := data.(interface{ Hex() string }); ok {
			return h.Hex(), nil
		}
		if s, ok := data.(fmt.Stringer); ok {
			return s.String(), nil
		}
		return data, nil
	}
}

// timeHook: RFC3339 字符串 / 毫秒时间戳 / BSON DateTime 转 time.Time。
func timeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != timeType {
			return data, nil
		}
		switch v := data.(type) {
		case time.Time:
			return v, nil
		case string:
			if v == "" {
				return time.Time{}, nil
			}
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t, nil
			}
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse time %q: %w", v, err)
			}
			return time.UnixMilli(ms).UTC(), nil
		case float64:
			return time.UnixMilli(int64(v)).UTC(), nil
		case int64:
			return time.UnixMilli(v).UTC(), nil
		case interface{ Time() time.Time }:
			return v.Time().UTC(), nil
		}
		return data, nil
	}
}

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
