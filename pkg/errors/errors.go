package errors

import "errors"

// Kind 业务错误分类
type Kind int

const (
	KindUnknown    Kind = iota
	KindValidation      // 参数缺失或格式错误，未触达存储
	KindNotFound        // 引用的用户 / 任务 / 分配记录不存在
	KindForbidden       // 角色或归属不满足
	KindRejected        // 状态流转规则拒绝（工作流规则，非权限）
)

// String 返回分类名称（用于日志）
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error 带分类的业务错误。各 Service 以包级变量声明哨兵错误，调用方用 errors.Is 比较。
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// New 创建业务错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf 提取错误链上第一个业务错误的分类；非业务错误返回 KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is 判断错误链上是否存在指定分类的业务错误
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
