package errors

import "sync"

// Code 是跨包统一的错误码，也是 API 错误响应里的 code 字段。
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"

	// 交易构建、提交与镜像节点查询。
	CodeIllegalState         Code = "ILLEGAL_STATE"
	CodeInvalidKeyFormat     Code = "INVALID_KEY_FORMAT"
	CodeMissingRequiredField Code = "MISSING_REQUIRED_FIELD"
	CodeUnsupportedNetwork   Code = "UNSUPPORTED_NETWORK"
	CodeSubmissionFailure    Code = "SUBMISSION_FAILURE"
	CodeQueryFailure         Code = "QUERY_FAILURE"
)

// Severity 决定日志级别以及是否触发告警。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityCritical:
		return 2
	default:
		return 1
	}
}

// AtLeast 判断 s 是否不低于 min。未知取值按 warning 处理。
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// Attributes 是错误码的默认描述、严重程度与重试语义。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
}

var registry = struct {
	sync.RWMutex
	codes map[Code]Attributes
}{codes: map[Code]Attributes{
	CodeUnknown:               {"unknown error", SeverityCritical, false},
	CodeInvalidArgument:       {"invalid argument", SeverityInfo, false},
	CodeNotFound:              {"resource not found", SeverityInfo, false},
	CodeConflict:              {"resource conflict", SeverityWarning, false},
	CodeInitializationFailure: {"service not initialized", SeverityWarning, true},
	CodeStorageFailure:        {"storage failure", SeverityCritical, true},
	CodeQueueFailure:          {"queue failure", SeverityCritical, true},
	CodeTimeout:               {"operation timed out", SeverityWarning, true},

	CodeIllegalState:         {"transaction is not in a mutable state", SeverityWarning, false},
	CodeInvalidKeyFormat:     {"invalid key format", SeverityInfo, false},
	CodeMissingRequiredField: {"missing required field", SeverityInfo, false},
	CodeUnsupportedNetwork:   {"unsupported network", SeverityWarning, false},
	CodeSubmissionFailure:    {"transaction submission failed", SeverityWarning, false},
	CodeQueryFailure:         {"mirror node query failed", SeverityWarning, true},
}}

// Register 供业务包在 init 中登记自己的错误码，重复登记以后者为准。
func Register(code Code, attr Attributes) {
	registry.Lock()
	defer registry.Unlock()
	registry.codes[code] = attr
}

// AttributesOf 返回错误码的属性，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registry.RLock()
	defer registry.RUnlock()
	if attr, ok := registry.codes[code]; ok {
		return attr
	}
	return registry.codes[CodeUnknown]
}
