package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldProjectID     = "project_id"
	FieldCategoryID    = "category_id"
	FieldFieldName     = "field_name"
	FieldTransactionID = "transaction_id"
	FieldInvitationID  = "invitation_id"
	FieldAmountCents   = "amount_cents"
	FieldCount         = "count"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentProject     = "project"
	ComponentSchema      = "schema"
	ComponentViews       = "views"
	ComponentTransaction = "transaction"
	ComponentInvitation  = "invitation"
	ComponentCashCount   = "cashcount"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
	ComponentSheets      = "sheets"
	ComponentCache       = "cache"
	ComponentAuth        = "auth"
	ComponentSecurity    = "security"
	ComponentRateLimit   = "rate_limit"
	ComponentTrace       = "trace"
	ComponentBackend     = "backend"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpList      = "list"
	OpMove      = "move"
	OpRename    = "rename"
	OpMigrate   = "migrate"
	OpImport    = "import"
	OpProvision = "provision"
	OpReconcile = "reconcile"
	OpExport    = "export"
	OpInvite    = "invite"
	OpAccept    = "accept"
	OpCleanup   = "cleanup"
	OpSync      = "sync"
	OpValidate  = "validate"
	OpParse     = "parse"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeDenied        = "denied_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypePartial       = "partial_batch_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category field
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithProject adds the project scope of an operation
func (f LogFields) WithProject(projectID string) LogFields {
	f[FieldProjectID] = projectID
	return f
}

// WithUser adds the acting user
func (f LogFields) WithUser(userID string) LogFields {
	if userID != "" {
		f[FieldUserID] = userID
	}
	return f
}

// WithTransaction adds transaction fields
func (f LogFields) WithTransaction(id string, amountCents int64) LogFields {
	f[FieldTransactionID] = id
	f[FieldAmountCents] = amountCents
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
