package errs

const (
	ServerInternalError = 500

	AuthError        = 1001 // missing, invalid or expired credential
	MalformedPayload = 1002 // inbound frame without required fields
	UploadError      = 1003 // attachment store unreachable or rejected
	StoreError       = 1004 // durable write failed
	LivenessTimeout  = 1005 // probe not acknowledged in time

	RecordNotFoundError = 1101
	RecordExistsError   = 1102
	ArgsError           = 1103
)

var (
	ErrServerInternal   = NewCodeError(ServerInternalError, "server internal error")
	ErrAuth             = NewCodeError(AuthError, "authentication failed")
	ErrMalformedPayload = NewCodeError(MalformedPayload, "malformed payload")
	ErrUpload           = NewCodeError(UploadError, "attachment upload failed")
	ErrStore            = NewCodeError(StoreError, "message store write failed")
	ErrLivenessTimeout  = NewCodeError(LivenessTimeout, "liveness timeout")
	ErrRecordNotFound   = NewCodeError(RecordNotFoundError, "record not found")
	ErrRecordExists     = NewCodeError(RecordExistsError, "record already exists")
	ErrArgs             = NewCodeError(ArgsError, "invalid arguments")
)
