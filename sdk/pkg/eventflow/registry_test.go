package eventflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler() EventHandler {
	return EventHandlerFunc(func(ctx context.Context, envelope *Envelope) error { return nil })
}

func TestRegistryHandlersSortedByPriorityDesc(t *testing.T) {
	r := NewEventTypeRegistry()

	r.RegisterEventFlow(EventTypeTaskCompleted, []HandlerRegistration{
		{Name: "AuditLog", Handler: noopHandler(), Priority: 1, IsCritical: true},
		{Name: "NotifyClient", Handler: noopHandler(), Priority: 10},
		{Name: "UpdateDashboard", Handler: noopHandler(), Priority: 5},
	}, nil, "")

	handlers := r.GetHandlersForEvent(EventTypeTaskCompleted)
	require.Len(t, handlers, 3)
	assert.Equal(t, "NotifyClient", handlers[0].Name)
	assert.Equal(t, "UpdateDashboard", handlers[1].Name)
	assert.Equal(t, "AuditLog", handlers[2].Name)
}

func TestRegistryStableSortPreservesRegistrationOrderOnTies(t *testing.T) {
	r := NewEventTypeRegistry()

	r.RegisterEventFlow(EventTypeTaskCreated, []HandlerRegistration{
		{Name: "First", Handler: noopHandler(), Priority: 5},
		{Name: "Second", Handler: noopHandler(), Priority: 5},
		{Name: "Third", Handler: noopHandler(), Priority: 5},
	}, nil, "")

	handlers := r.GetHandlersForEvent(EventTypeTaskCreated)
	require.Len(t, handlers, 3)
	assert.Equal(t, "First", handlers[0].Name)
	assert.Equal(t, "Second", handlers[1].Name)
	assert.Equal(t, "Third", handlers[2].Name)
}

func TestRegistryUnknownEventTypeReturnsNil(t *testing.T) {
	r := NewEventTypeRegistry()
	assert.Nil(t, r.GetHandlersForEvent("never.registered"))
}

func TestRegistryAddHandlerRejectsDuplicateName(t *testing.T) {
	r := NewEventTypeRegistry()

	require.NoError(t, r.AddHandler(EventTypeTaskCreated, HandlerRegistration{
		Name: "NotifyClient", Handler: noopHandler(), Priority: 1,
	}))
	err := r.AddHandler(EventTypeTaskCreated, HandlerRegistration{
		Name: "NotifyClient", Handler: noopHandler(), Priority: 2,
	})
	assert.Error(t, err)
	assert.Len(t, r.GetHandlersForEvent(EventTypeTaskCreated), 1)
}

func TestRegistryAddHandlerKeepsOrder(t *testing.T) {
	r := NewEventTypeRegistry()

	require.NoError(t, r.AddHandler(EventTypeTaskCreated, HandlerRegistration{Name: "Low", Handler: noopHandler(), Priority: 1}))
	require.NoError(t, r.AddHandler(EventTypeTaskCreated, HandlerRegistration{Name: "High", Handler: noopHandler(), Priority: 9}))

	handlers := r.GetHandlersForEvent(EventTypeTaskCreated)
	require.Len(t, handlers, 2)
	assert.Equal(t, "High", handlers[0].Name)
}

func TestRegistryRemoveHandler(t *testing.T) {
	r := NewEventTypeRegistry()
	require.NoError(t, r.AddHandler(EventTypeTaskCreated, HandlerRegistration{Name: "A", Handler: noopHandler()}))
	require.NoError(t, r.AddHandler(EventTypeTaskCreated, HandlerRegistration{Name: "B", Handler: noopHandler()}))

	assert.Equal(t, 1, r.RemoveHandler(EventTypeTaskCreated, "A"))
	assert.Equal(t, 1, r.RemoveHandler(EventTypeTaskCreated, "missing"))
	assert.Equal(t, 0, r.RemoveHandler("unknown.type", "A"))
}

func TestRegistryRegisterOverwritesExistingFlow(t *testing.T) {
	r := NewEventTypeRegistry()

	r.RegisterEventFlow(EventTypeTaskCreated, []HandlerRegistration{
		{Name: "Old", Handler: noopHandler()},
	}, nil, "old")
	r.RegisterEventFlow(EventTypeTaskCreated, []HandlerRegistration{
		{Name: "New", Handler: noopHandler()},
	}, nil, "new")

	handlers := r.GetHandlersForEvent(EventTypeTaskCreated)
	require.Len(t, handlers, 1)
	assert.Equal(t, "New", handlers[0].Name)

	flow, ok := r.GetEventFlow(EventTypeTaskCreated)
	require.True(t, ok)
	assert.Equal(t, "new", flow.Description)
}

func TestRegistryDependencyChainTopologicalOrder(t *testing.T) {
	r := NewEventTypeRegistry()

	// invoice.paid 依赖 invoice.created 依赖 project.created
	r.RegisterEventFlow(EventTypeProjectCreated, []HandlerRegistration{{Name: "P", Handler: noopHandler()}}, nil, "")
	r.RegisterEventFlow(EventTypeInvoiceCreated, []HandlerRegistration{{Name: "I", Handler: noopHandler()}}, []string{EventTypeProjectCreated}, "")
	r.RegisterEventFlow(EventTypeInvoicePaid, []HandlerRegistration{{Name: "Paid", Handler: noopHandler()}}, []string{EventTypeInvoiceCreated}, "")

	chain := r.GetEventDependencyChain(EventTypeInvoicePaid)
	assert.Equal(t, []string{EventTypeProjectCreated, EventTypeInvoiceCreated, EventTypeInvoicePaid}, chain)
}

func TestRegistryDependencyCycleTerminates(t *testing.T) {
	r := NewEventTypeRegistry()

	// A -> B -> A：遍历必须终止而不是无限递归
	r.RegisterEventFlow("a.event", []HandlerRegistration{{Name: "A", Handler: noopHandler()}}, []string{"b.event"}, "")
	r.RegisterEventFlow("b.event", []HandlerRegistration{{Name: "B", Handler: noopHandler()}}, []string{"a.event"}, "")

	chain := r.GetEventDependencyChain("a.event")
	assert.NotEmpty(t, chain)
	assert.Contains(t, chain, "a.event")
	assert.Contains(t, chain, "b.event")
}

func TestRegistryValidateFindsIssues(t *testing.T) {
	r := NewEventTypeRegistry()

	r.RegisterEventFlow("empty.flow", nil, nil, "")
	r.RegisterEventFlow("double.critical", []HandlerRegistration{
		{Name: "A", Handler: noopHandler(), IsCritical: true},
		{Name: "B", Handler: noopHandler(), IsCritical: true},
	}, nil, "")
	r.RegisterEventFlow("bad.deps", []HandlerRegistration{
		{Name: "C", Handler: noopHandler()},
	}, []string{"never.registered"}, "")
	r.RegisterEventFlow("cycle.x", []HandlerRegistration{{Name: "X", Handler: noopHandler()}}, []string{"cycle.y"}, "")
	r.RegisterEventFlow("cycle.y", []HandlerRegistration{{Name: "Y", Handler: noopHandler()}}, []string{"cycle.x"}, "")

	issues := r.ValidateRegistry()
	assert.False(t, issues.Empty())
	assert.Contains(t, issues.NoHandlers, "empty.flow")
	assert.Contains(t, issues.MultipleCritical, "double.critical")
	assert.Contains(t, issues.UnknownDeps["bad.deps"], "never.registered")
	assert.Contains(t, issues.Cycles, "cycle.x")
	assert.Contains(t, issues.Cycles, "cycle.y")
}

func TestRegistryValidateCleanRegistry(t *testing.T) {
	r := NewEventTypeRegistry()
	r.RegisterEventFlow(EventTypeTaskCreated, []HandlerRegistration{
		{Name: "A", Handler: noopHandler(), IsCritical: true},
		{Name: "B", Handler: noopHandler()},
	}, nil, "")

	assert.True(t, r.ValidateRegistry().Empty())
}

func TestRegistryClear(t *testing.T) {
	r := NewEventTypeRegistry()
	r.RegisterEventFlow(EventTypeTaskCreated, []HandlerRegistration{{Name: "A", Handler: noopHandler()}}, nil, "")
	r.ClearRegistry()
	assert.Empty(t, r.RegisteredEventTypes())
}

func TestRegistryGenerateFlowDocumentation(t *testing.T) {
	r := NewEventTypeRegistry()
	r.RegisterEventFlow(EventTypeTaskCompleted, []HandlerRegistration{
		{Name: "NotifyClient", Handler: noopHandler(), Priority: 10},
		{Name: "AuditLog", Handler: noopHandler(), Priority: 1, IsCritical: true},
	}, []string{EventTypeTaskCreated}, "任务完成后的通知与审计")

	doc := r.GenerateFlowDocumentation()
	assert.Contains(t, doc, EventTypeTaskCompleted)
	assert.Contains(t, doc, "NotifyClient")
	assert.Contains(t, doc, "[critical]")
	assert.Contains(t, doc, EventTypeTaskCreated)
}
