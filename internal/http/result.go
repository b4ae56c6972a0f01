package httpapi

// Result response envelope shared with the dashboard front end
// - code: 2000 on success, -1 on error
// - type: "success" | "error"
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// FailWith error envelope that still carries a body, e.g. a degraded health report
func FailWith[T any](message string, result T) Result[T] {
	return Result[T]{Code: ResultError, Type: "error", Message: message, Result: result}
}
