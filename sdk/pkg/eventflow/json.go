package eventflow

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// JSON 统一的 jsoniter 配置实例
// 使用 ConfigCompatibleWithStandardLibrary 确保与标准库完全兼容
// 同时获得更高的性能
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalToString 将对象序列化为 JSON 字符串
func MarshalToString(v interface{}) (string, error) {
	return JSON.MarshalToString(v)
}

// UnmarshalFromString 从 JSON 字符串反序列化对象
func UnmarshalFromString(str string, v interface{}) error {
	return JSON.UnmarshalFromString(str, v)
}

// Marshal 序列化对象为 JSON 字节数组
// 暂时使用标准库避免jsoniter的map序列化问题
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal 从 JSON 字节数组反序列化对象
func Unmarshal(data []byte, v interface{}) error {
	return JSON.Unmarshal(data, v)
}

// RawMessage 原始JSON消息
type RawMessage = json.RawMessage
