package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 可用 "30s" 这类字符串表示的时长
type Duration time.Duration

// Std 转换为标准库类型
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON 编码为时长字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON 接受时长字符串或纳秒数
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
}
