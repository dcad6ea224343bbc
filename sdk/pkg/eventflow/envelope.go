package eventflow

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope 统一事件包络结构
// 创建后不可变；event_id全局唯一；timestamp在创建时设置为UTC
type Envelope struct {
	EventID      string                 `json:"event_id"`      // 事件ID（UUID字符串）
	EventType    string                 `json:"event_type"`    // 事件类型（必填）
	Timestamp    time.Time              `json:"timestamp"`     // 时间戳（ISO-8601 UTC）
	Version      string                 `json:"version"`       // 包络版本（默认"1.0"）
	FirmID       *int64                 `json:"firm_id"`       // 租户ID（可空）
	UserID       *int64                 `json:"user_id"`       // 操作者ID（可空）
	SourceSystem string                 `json:"source_system"` // 来源系统
	Payload      map[string]interface{} `json:"payload"`       // 事件类型特定的业务负载
}

// NewEnvelope 创建新的事件包络（自动生成 EventID）
// EventID 使用 UUID v7（时间排序的 UUID，适合按创建时间自然排序）
func NewEnvelope(eventType string, payload map[string]interface{}) *Envelope {
	eventID, err := uuid.NewV7()
	if err != nil {
		// NewV7 理论上不会失败（除非系统时钟异常），但为了健壮性，回退到 UUID v4
		eventID = uuid.New()
	}

	if payload == nil {
		payload = make(map[string]interface{})
	}

	return &Envelope{
		EventID:      eventID.String(),
		EventType:    eventType,
		Timestamp:    time.Now().UTC(),
		Version:      DefaultEnvelopeVersion,
		SourceSystem: DefaultSourceSystem,
		Payload:      payload,
	}
}

// WithFirm 设置租户上下文，返回自身便于链式调用
// 仅在包络发布前调用；发布后包络视为不可变
func (e *Envelope) WithFirm(firmID int64) *Envelope {
	e.FirmID = &firmID
	return e
}

// WithUser 设置操作者上下文
func (e *Envelope) WithUser(userID int64) *Envelope {
	e.UserID = &userID
	return e
}

// WithSource 设置来源系统标识
func (e *Envelope) WithSource(source string) *Envelope {
	e.SourceSystem = source
	return e
}

// Validate 校验包络字段
func (e *Envelope) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return errors.New("event_id is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return errors.New("event_type is required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if strings.TrimSpace(e.Version) == "" {
		return errors.New("version is required")
	}
	return nil
}

// ToBytes 序列化为线格式（每个包络一个JSON对象，时间戳为ISO-8601 UTC）
func (e *Envelope) ToBytes() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, &SerializationError{EventID: e.EventID, EventType: e.EventType, Err: err}
	}
	data, err := Marshal(e)
	if err != nil {
		return nil, &SerializationError{EventID: e.EventID, EventType: e.EventType, Err: err}
	}
	return data, nil
}

// FromBytes 从字节数组反序列化
func FromBytes(data []byte) (*Envelope, error) {
	var env Envelope
	if err := Unmarshal(data, &env); err != nil {
		return nil, &SerializationError{Err: err}
	}
	if err := env.Validate(); err != nil {
		return nil, &SerializationError{EventID: env.EventID, EventType: env.EventType, Err: err}
	}
	return &env, nil
}
