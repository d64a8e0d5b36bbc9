package errx

import "sync"

// ErrorCode is a registered, prefixed error code
type ErrorCode string

type definition struct {
	t       Type
	status  int
	message string
}

// Registry groups the error codes of one domain under a common prefix
type Registry struct {
	prefix string
	mu     sync.RWMutex
	codes  map[ErrorCode]definition
}

// NewRegistry creates a registry whose codes are prefixed with prefix
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix: prefix,
		codes:  make(map[ErrorCode]definition),
	}
}

// Register declares a code and returns its fully qualified value
func (r *Registry) Register(code string, t Type, httpStatus int, message string) ErrorCode {
	full := ErrorCode(r.prefix + "_" + code)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[full] = definition{t: t, status: httpStatus, message: message}

	return full
}

// New builds an error for a registered code
func (r *Registry) New(code ErrorCode) *Error {
	r.mu.RLock()
	def, ok := r.codes[code]
	r.mu.RUnlock()

	if !ok {
		return &Error{
			Code:       string(code),
			Type:       TypeInternal,
			Message:    "unregistered error code " + string(code),
			HTTPStatus: statusForType(TypeInternal),
		}
	}

	return &Error{
		Code:       string(code),
		Type:       def.t,
		Message:    def.message,
		HTTPStatus: def.status,
	}
}

// NewWithCause builds an error for a registered code wrapping err
func (r *Registry) NewWithCause(code ErrorCode, err error) *Error {
	return r.New(code).WithCause(err)
}

// NewWithMessage builds an error for a registered code with a custom message
func (r *Registry) NewWithMessage(code ErrorCode, message string) *Error {
	e := r.New(code)
	e.Message = message
	return e
}
