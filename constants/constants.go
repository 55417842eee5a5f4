package constants

const (
	ROLE_STUDENT = "student"
	ROLE_VENDOR  = "vendor"
	ROLE_ADMIN   = "admin"
)

const (
	DATA_INPUT_IS_NOT_NUMBER = "Input is not a number"
	ERROR_INTERNAL_ERROR     = "Internal server error"
	ERROR_INVALID_INPUT      = "Invalid input"
	ERROR_UNAUTHORIZED       = "Please log in"
	ERROR_FORBIDDEN          = "You are not allowed to do this"
)

const (
	HEADER_DEVICE_ID     = "X-Device-Id"
	HEADER_SIGNATURE     = "X-Signature"
	HEADER_EVENT_ID      = "X-Event-Id"
	HEADER_PHONEPE_CHECK = "X-VERIFY"
)

const (
	COUNTER_ORDER       = "order#"
	COUNTER_GROUP_ORDER = "grouporder#"
)

const (
	PROVIDER_RAZORPAY = "razorpay"
	PROVIDER_PHONEPE  = "phonepe"
)
