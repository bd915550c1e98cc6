package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldDate       = "date"
	FieldStart      = "start"
	FieldEnd        = "end"
	FieldMode       = "mode"
	FieldOpening    = "opening"
	FieldClosing    = "closing"
	FieldDifference = "difference"
	FieldJobID      = "job_id"
	FieldSourceKind = "source_kind"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentClassifier   = "classifier"
	ComponentAggregator   = "aggregator"
	ComponentRecalculator = "recalculator"
	ComponentReconcile    = "reconcile"
	ComponentResync       = "resync"
	ComponentImport       = "import"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentWorker       = "worker"
	ComponentScheduler    = "scheduler"
	ComponentSheets       = "sheets"
	ComponentCache        = "cache"
	ComponentSecurity     = "security"
	ComponentRateLimit    = "rate_limit"
	ComponentTrace        = "trace"
	ComponentBackend      = "backend"
	ComponentCLI          = "cli"
	ComponentApplication  = "application"
)

// Operations defines standard operation names
const (
	OpRecalculate = "recalculate"
	OpReconcile   = "reconcile"
	OpResync      = "resync"
	OpImport      = "import"
	OpFetch       = "fetch"
	OpUpsert      = "upsert"
	OpList        = "list"
	OpEnqueue     = "enqueue"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
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

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRange adds the bounds of a date range.
func (f LogFields) WithRange(start, end string) LogFields {
	f[FieldStart] = start
	f[FieldEnd] = end
	return f
}

// WithBalance adds a day's opening and closing balance.
func (f LogFields) WithBalance(date, opening, closing string) LogFields {
	f[FieldDate] = date
	f[FieldOpening] = opening
	f[FieldClosing] = closing
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
