package eventflow

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen 熔断器处于打开状态，调用被快速失败
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrBrokerClosed broker已关闭
var ErrBrokerClosed = errors.New("broker is closed")

// BrokerError 瞬时基础设施故障（broker不可达、发布失败等）
// 该类错误由熔断器+重试+降级缓冲吸收，不会传播给生产者
type BrokerError struct {
	Op  string // 操作名：publish, subscribe, connect, health_check
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s failed: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError 包装broker操作错误
func NewBrokerError(op string, err error) *BrokerError {
	return &BrokerError{Op: op, Err: err}
}

// IsBrokerError 判断是否为瞬时broker故障
func IsBrokerError(err error) bool {
	var be *BrokerError
	return errors.As(err, &be)
}

// SerializationError 包络无法编码/解码
// 重试无法修复该类错误，发布路径直接返回false，不进入降级缓冲
type SerializationError struct {
	EventID   string
	EventType string
	Err       error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failed for event %s (%s): %v", e.EventID, e.EventType, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// IsSerializationError 判断是否为序列化错误
func IsSerializationError(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}

// HandlerError 单个处理器执行失败，按处理器记录
// 只有关键处理器的失败才会将整体处理结果标记为失败
type HandlerError struct {
	HandlerName string
	EventType   string
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.HandlerName, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
