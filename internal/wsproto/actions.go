package wsproto

// Action name constants for the Agent and Orchestrator hubs (spec.md §6).
const (
	ActionHealthCheck = "health.check"

	// Agent hub (client -> server)
	ActionSendAgentMessage = "agent.send_message"
	ActionExecuteTool      = "agent.execute_tool"
	ActionSubscribeAgent   = "agent.subscribe"
	ActionUnsubscribeAgent = "agent.unsubscribe"

	// Orchestrator hub (client -> server)
	ActionCreateSession            = "orchestrator.create_session"
	ActionJoinSession              = "orchestrator.join_session"
	ActionLeaveSession             = "orchestrator.leave_session"
	ActionSendOrchestrationMessage = "orchestrator.send_message"

	// Server-pushed notifications
	ActionConnected                = "connected"
	ActionReceiveError              = "receive_error"
	ActionSessionCreated            = "session.created"
	ActionSessionJoined             = "session.joined"
	ActionReceiveAgentResponse      = "agent.response"
	ActionToolExecutionUpdate       = "agent.tool_execution_update"
	ActionAgentStatusUpdate         = "agent.status_update"
	ActionOrchestrationPlanCreated  = "orchestration.plan_created"
	ActionOrchestrationProgress     = "orchestration.progress"
	ActionOrchestrationCompleted    = "orchestration.completed"
)

// Error codes, mirroring internal/apperr.Code values for wire payloads.
const (
	ErrorCodeInvalidArgument  = "INVALID_ARGUMENT"
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodePermissionDenied = "PERMISSION_DENIED"
	ErrorCodePreconditionFail = "PRECONDITION_FAILED"
	ErrorCodeTimeout          = "TIMEOUT"
	ErrorCodeCancelled        = "CANCELLED"
	ErrorCodeAdapterFailure   = "ADAPTER_FAILURE"
	ErrorCodeInternal         = "INTERNAL_ERROR"
	ErrorCodeUnknownAction    = "UNKNOWN_ACTION"
)
