package eventflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"
)

// HandlerRegistration 处理器注册项
// Name在同一事件类型的处理器列表中唯一
type HandlerRegistration struct {
	Name       string       // 处理器名称
	Handler    EventHandler // 处理器实现
	Priority   int          // 优先级，数值大的先执行
	IsCritical bool         // 关键处理器：失败会将整体处理结果标记为失败
	IsAsync    bool         // 异步处理器：在独立goroutine中并发执行
}

// EventFlow 注册表条目：一个事件类型的处理器列表与依赖声明
// Handlers始终按优先级降序保存；Dependencies仅用于文档和校验，不做运行时强制
type EventFlow struct {
	EventType    string
	Handlers     []HandlerRegistration
	Dependencies []string // 依赖的上游事件类型
	Description  string   // 自由文本说明
}

// EventTypeRegistry 事件类型注册表
// 映射事件类型 -> 有序处理器列表 + 依赖边。
// 条目在进程启动时配置，之后视为不可变（显式的测试用清空操作除外）。
type EventTypeRegistry struct {
	mu    sync.RWMutex
	flows map[string]*EventFlow
}

// NewEventTypeRegistry 创建注册表
func NewEventTypeRegistry() *EventTypeRegistry {
	return &EventTypeRegistry{
		flows: make(map[string]*EventFlow),
	}
}

// RegisterEventFlow 注册事件流（幂等覆盖）
// 处理器按优先级降序排序，同优先级保持注册顺序
func (r *EventTypeRegistry) RegisterEventFlow(eventType string, handlers []HandlerRegistration, dependencies []string, description string) {
	sorted := make([]HandlerRegistration, len(handlers))
	copy(sorted, handlers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.flows[eventType]; exists {
		logger.Info("Overwriting existing event flow registration", "eventType", eventType)
	}

	r.flows[eventType] = &EventFlow{
		EventType:    eventType,
		Handlers:     sorted,
		Dependencies: append([]string(nil), dependencies...),
		Description:  description,
	}

	logger.Info("Event flow registered",
		"eventType", eventType,
		"handlers", len(sorted),
		"dependencies", len(dependencies))
}

// AddHandler 向已有（或新建）事件流追加一个处理器，保持优先级降序
// 同名处理器重复注册返回错误
func (r *EventTypeRegistry) AddHandler(eventType string, registration HandlerRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, exists := r.flows[eventType]
	if !exists {
		flow = &EventFlow{EventType: eventType}
		r.flows[eventType] = flow
	}

	for _, h := range flow.Handlers {
		if h.Name == registration.Name {
			return fmt.Errorf("handler %q already registered for event type %q", registration.Name, eventType)
		}
	}

	flow.Handlers = append(flow.Handlers, registration)
	sort.SliceStable(flow.Handlers, func(i, j int) bool {
		return flow.Handlers[i].Priority > flow.Handlers[j].Priority
	})

	return nil
}

// RemoveHandler 移除一个处理器；返回该事件类型剩余的处理器数量
func (r *EventTypeRegistry) RemoveHandler(eventType, handlerName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, exists := r.flows[eventType]
	if !exists {
		return 0
	}

	kept := flow.Handlers[:0]
	for _, h := range flow.Handlers {
		if h.Name != handlerName {
			kept = append(kept, h)
		}
	}
	flow.Handlers = kept
	return len(flow.Handlers)
}

// GetHandlersForEvent 返回事件类型的有序处理器列表
// 未知类型返回空列表而非错误：生产者可以比消费者更新
func (r *EventTypeRegistry) GetHandlersForEvent(eventType string) []HandlerRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.flows[eventType]
	if !exists {
		return nil
	}

	handlers := make([]HandlerRegistration, len(flow.Handlers))
	copy(handlers, flow.Handlers)
	return handlers
}

// GetEventFlow 返回事件流定义（副本）
func (r *EventTypeRegistry) GetEventFlow(eventType string) (*EventFlow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.flows[eventType]
	if !exists {
		return nil, false
	}

	flowCopy := *flow
	flowCopy.Handlers = append([]HandlerRegistration(nil), flow.Handlers...)
	flowCopy.Dependencies = append([]string(nil), flow.Dependencies...)
	return &flowCopy, true
}

// RegisteredEventTypes 返回已注册的事件类型（字典序）
func (r *EventTypeRegistry) RegisteredEventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.flows))
	for t := range r.flows {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// GetEventDependencyChain 通过DFS构建事件类型的依赖拓扑序（依赖在前）
// 依赖边可能成环：检测到环时记录WARNING并终止遍历，不会无限递归
func (r *EventTypeRegistry) GetEventDependencyChain(eventType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var chain []string
	visited := make(map[string]bool)  // 已完成
	visiting := make(map[string]bool) // 在当前DFS路径上

	var visit func(t string, path []string)
	visit = func(t string, path []string) {
		if visited[t] {
			return
		}
		if visiting[t] {
			logger.Warn("Dependency cycle detected in event registry",
				"eventType", t,
				"path", strings.Join(append(path, t), " -> "))
			return
		}

		visiting[t] = true
		if flow, exists := r.flows[t]; exists {
			for _, dep := range flow.Dependencies {
				visit(dep, append(path, t))
			}
		}
		visiting[t] = false
		visited[t] = true
		chain = append(chain, t)
	}

	visit(eventType, nil)
	return chain
}

// RegistryIssues 注册表校验结果，按类别分组
type RegistryIssues struct {
	NoHandlers        []string            `json:"noHandlers"`        // 没有任何处理器的事件类型
	MultipleCritical  []string            `json:"multipleCritical"`  // 关键处理器多于一个的事件类型（仅标记，不自动处理）
	DuplicateHandlers map[string][]string `json:"duplicateHandlers"` // 事件类型 -> 重复的处理器名
	UnknownDeps       map[string][]string `json:"unknownDeps"`       // 事件类型 -> 指向未注册类型的依赖边
	Cycles            []string            `json:"cycles"`            // 参与依赖环的事件类型
}

// Empty 是否没有任何问题
func (i *RegistryIssues) Empty() bool {
	return len(i.NoHandlers) == 0 &&
		len(i.MultipleCritical) == 0 &&
		len(i.DuplicateHandlers) == 0 &&
		len(i.UnknownDeps) == 0 &&
		len(i.Cycles) == 0
}

// ValidateRegistry 校验注册表配置
// 面向启动期/CI的契约检查，不在热路径上调用
func (r *EventTypeRegistry) ValidateRegistry() *RegistryIssues {
	r.mu.RLock()
	defer r.mu.RUnlock()

	issues := &RegistryIssues{
		DuplicateHandlers: make(map[string][]string),
		UnknownDeps:       make(map[string][]string),
	}

	for eventType, flow := range r.flows {
		if len(flow.Handlers) == 0 {
			issues.NoHandlers = append(issues.NoHandlers, eventType)
		}

		criticalCount := 0
		seen := make(map[string]bool)
		for _, h := range flow.Handlers {
			if h.IsCritical {
				criticalCount++
			}
			if seen[h.Name] {
				issues.DuplicateHandlers[eventType] = append(issues.DuplicateHandlers[eventType], h.Name)
			}
			seen[h.Name] = true
		}
		if criticalCount > 1 {
			issues.MultipleCritical = append(issues.MultipleCritical, eventType)
		}

		for _, dep := range flow.Dependencies {
			if _, exists := r.flows[dep]; !exists {
				issues.UnknownDeps[eventType] = append(issues.UnknownDeps[eventType], dep)
			}
		}
	}

	issues.Cycles = r.findCyclesLocked()

	sort.Strings(issues.NoHandlers)
	sort.Strings(issues.MultipleCritical)
	sort.Strings(issues.Cycles)

	if !issues.Empty() {
		logger.Warn("Event registry validation found issues",
			"noHandlers", len(issues.NoHandlers),
			"multipleCritical", len(issues.MultipleCritical),
			"duplicateHandlers", len(issues.DuplicateHandlers),
			"unknownDeps", len(issues.UnknownDeps),
			"cycleMembers", len(issues.Cycles))
	}

	return issues
}

// findCyclesLocked 返回参与依赖环的事件类型（调用方持有读锁）
func (r *EventTypeRegistry) findCyclesLocked() []string {
	cycleMembers := make(map[string]bool)
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(t string)
	visit = func(t string) {
		if visited[t] || cycleMembers[t] {
			return
		}
		if visiting[t] {
			cycleMembers[t] = true
			return
		}

		visiting[t] = true
		if flow, exists := r.flows[t]; exists {
			for _, dep := range flow.Dependencies {
				visit(dep)
				if cycleMembers[dep] && visiting[dep] {
					cycleMembers[t] = true
				}
			}
		}
		visiting[t] = false
		visited[t] = true
	}

	for t := range r.flows {
		visit(t)
	}

	members := make([]string, 0, len(cycleMembers))
	for t := range cycleMembers {
		members = append(members, t)
	}
	return members
}

// ClearRegistry 清空注册表（测试隔离用）
func (r *EventTypeRegistry) ClearRegistry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows = make(map[string]*EventFlow)
}

// GenerateFlowDocumentation 生成事件流文档（仅用于自省，不在热路径上）
func (r *EventTypeRegistry) GenerateFlowDocumentation() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.flows))
	for t := range r.flows {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString("# Event Flow Documentation\n\n")

	for _, t := range types {
		flow := r.flows[t]
		fmt.Fprintf(&b, "## %s\n", t)
		if flow.Description != "" {
			fmt.Fprintf(&b, "%s\n", flow.Description)
		}
		if len(flow.Dependencies) > 0 {
			fmt.Fprintf(&b, "Depends on: %s\n", strings.Join(flow.Dependencies, ", "))
		}
		b.WriteString("Handlers (in dispatch order):\n")
		for _, h := range flow.Handlers {
			marker := ""
			if h.IsCritical {
				marker = " [critical]"
			}
			if h.IsAsync {
				marker += " [async]"
			}
			fmt.Fprintf(&b, "- %s (priority=%d)%s\n", h.Name, h.Priority, marker)
		}
		b.WriteString("\n")
	}

	return b.String()
}
