package events

import (
	"context"
	"sync"
	"time"
)

// Type 标识账号变更事件的种类，同时作为消息的 routing key。
type Type string

const (
	TypeAccountCreated Type = "account.created"
	TypeAccountUpdated Type = "account.updated"
)

// Event 描述一次账号变更。事件中不携带任何凭据。
type Event struct {
	Type         Type      `json:"type"`
	AccountID    string    `json:"account_id"`
	AccountName  string    `json:"account_name"`
	EndpointType string    `json:"endpoint_type"`
	IsActive     bool      `json:"is_active"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher 将账号变更广播给依赖方，例如调度器刷新账号池。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher 丢弃所有事件。
type NopPublisher struct{}

// Publish 实现 Publisher 接口。
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher 接口。
func (NopPublisher) Close() error { return nil }

// MemoryPublisher 在内存中记录事件，主要用于测试。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher 创建 MemoryPublisher。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher 接口。
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events 返回已记录事件的副本。
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Close 实现 Publisher 接口。
func (p *MemoryPublisher) Close() error { return nil }

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*MemoryPublisher)(nil)
)
