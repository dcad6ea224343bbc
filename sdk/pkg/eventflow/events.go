package eventflow

import "time"

// 工作流领域事件类型
// 事件类型作为判别式，决定通道路由（events:<type>）与注册表中的处理器列表
const (
	// 任务事件
	EventTypeTaskCreated       = "task.created"
	EventTypeTaskAssigned      = "task.assigned"
	EventTypeTaskStatusChanged = "task.status_changed"
	EventTypeTaskCompleted     = "task.completed"
	EventTypeTaskDeadlineSoon  = "task.deadline_approaching"

	// 项目事件
	EventTypeProjectCreated       = "project.created"
	EventTypeProjectStatusChanged = "project.status_changed"
	EventTypeProjectCompleted     = "project.completed"

	// 客户事件
	EventTypeClientCreated = "client.created"
	EventTypeClientUpdated = "client.updated"

	// 文档与账务事件
	EventTypeDocumentUploaded = "document.uploaded"
	EventTypeInvoiceCreated   = "invoice.created"
	EventTypeInvoicePaid      = "invoice.paid"
)

// NewTaskCreatedEvent 任务创建事件
func NewTaskCreatedEvent(taskID int64, title string, projectID int64, assigneeID *int64, dueDate *time.Time) *Envelope {
	payload := map[string]interface{}{
		"task_id":    taskID,
		"title":      title,
		"project_id": projectID,
	}
	if assigneeID != nil {
		payload["assignee_id"] = *assigneeID
	}
	if dueDate != nil {
		payload["due_date"] = dueDate.UTC().Format(time.RFC3339)
	}
	return NewEnvelope(EventTypeTaskCreated, payload)
}

// NewTaskAssignedEvent 任务指派事件
func NewTaskAssignedEvent(taskID, assigneeID, assignedByID int64) *Envelope {
	return NewEnvelope(EventTypeTaskAssigned, map[string]interface{}{
		"task_id":        taskID,
		"assignee_id":    assigneeID,
		"assigned_by_id": assignedByID,
	})
}

// NewTaskStatusChangedEvent 任务状态变更事件
func NewTaskStatusChangedEvent(taskID int64, oldStatus, newStatus string) *Envelope {
	return NewEnvelope(EventTypeTaskStatusChanged, map[string]interface{}{
		"task_id":    taskID,
		"old_status": oldStatus,
		"new_status": newStatus,
	})
}

// NewTaskCompletedEvent 任务完成事件
func NewTaskCompletedEvent(taskID, completedByID int64, completedAt time.Time) *Envelope {
	return NewEnvelope(EventTypeTaskCompleted, map[string]interface{}{
		"task_id":         taskID,
		"completed_by_id": completedByID,
		"completed_at":    completedAt.UTC().Format(time.RFC3339),
	})
}

// NewTaskDeadlineApproachingEvent 任务临近截止事件
func NewTaskDeadlineApproachingEvent(taskID int64, dueDate time.Time, hoursRemaining int) *Envelope {
	return NewEnvelope(EventTypeTaskDeadlineSoon, map[string]interface{}{
		"task_id":         taskID,
		"due_date":        dueDate.UTC().Format(time.RFC3339),
		"hours_remaining": hoursRemaining,
	})
}

// NewProjectCreatedEvent 项目创建事件
func NewProjectCreatedEvent(projectID, clientID int64, name string) *Envelope {
	return NewEnvelope(EventTypeProjectCreated, map[string]interface{}{
		"project_id": projectID,
		"client_id":  clientID,
		"name":       name,
	})
}

// NewProjectStatusChangedEvent 项目状态变更事件
func NewProjectStatusChangedEvent(projectID int64, oldStatus, newStatus string) *Envelope {
	return NewEnvelope(EventTypeProjectStatusChanged, map[string]interface{}{
		"project_id": projectID,
		"old_status": oldStatus,
		"new_status": newStatus,
	})
}

// NewProjectCompletedEvent 项目完成事件
func NewProjectCompletedEvent(projectID int64, completedAt time.Time) *Envelope {
	return NewEnvelope(EventTypeProjectCompleted, map[string]interface{}{
		"project_id":   projectID,
		"completed_at": completedAt.UTC().Format(time.RFC3339),
	})
}

// NewClientCreatedEvent 客户创建事件
func NewClientCreatedEvent(clientID int64, name string) *Envelope {
	return NewEnvelope(EventTypeClientCreated, map[string]interface{}{
		"client_id": clientID,
		"name":      name,
	})
}

// NewClientUpdatedEvent 客户信息变更事件
func NewClientUpdatedEvent(clientID int64, changedFields []string) *Envelope {
	return NewEnvelope(EventTypeClientUpdated, map[string]interface{}{
		"client_id":      clientID,
		"changed_fields": changedFields,
	})
}

// NewDocumentUploadedEvent 文档上传事件
func NewDocumentUploadedEvent(documentID, projectID int64, fileName string, sizeBytes int64) *Envelope {
	return NewEnvelope(EventTypeDocumentUploaded, map[string]interface{}{
		"document_id": documentID,
		"project_id":  projectID,
		"file_name":   fileName,
		"size_bytes":  sizeBytes,
	})
}

// NewInvoiceCreatedEvent 发票创建事件
func NewInvoiceCreatedEvent(invoiceID, clientID int64, amountCents int64, currency string) *Envelope {
	return NewEnvelope(EventTypeInvoiceCreated, map[string]interface{}{
		"invoice_id":   invoiceID,
		"client_id":    clientID,
		"amount_cents": amountCents,
		"currency":     currency,
	})
}

// NewInvoicePaidEvent 发票支付事件
func NewInvoicePaidEvent(invoiceID int64, paidAt time.Time) *Envelope {
	return NewEnvelope(EventTypeInvoicePaid, map[string]interface{}{
		"invoice_id": invoiceID,
		"paid_at":    paidAt.UTC().Format(time.RFC3339),
	})
}
