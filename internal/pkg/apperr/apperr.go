// Package apperr 定义核心领域错误（带 Kind 标签的联合类型）。
//
// 调用方（HTTP/CLI）只应根据 Kind 与 Detail 做映射，不要解析错误消息。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindFutureDate          Kind = "future_date"
	KindAlreadyConfirmed    Kind = "already_confirmed"
	KindInvalidOperation    Kind = "invalid_operation"
	KindAlreadyUnlocked     Kind = "already_unlocked"
	KindInsufficientSP      Kind = "insufficient_sp"
	KindPrerequisiteNotMet  Kind = "prerequisite_not_met"
	KindPlayerStateNotFound Kind = "player_state_not_found"
	KindInvalidArgument     Kind = "invalid_argument"
	KindRetryable           Kind = "retryable"
	KindInternal            Kind = "internal"
)

// Kinds 所有已知类别（用于穷举映射的测试）
var Kinds = []Kind{
	KindValidation,
	KindNotFound,
	KindFutureDate,
	KindAlreadyConfirmed,
	KindInvalidOperation,
	KindAlreadyUnlocked,
	KindInsufficientSP,
	KindPrerequisiteNotMet,
	KindPlayerStateNotFound,
	KindInvalidArgument,
	KindRetryable,
	KindInternal,
}

// Detail 每种 Kind 对应的结构化载荷
type Detail interface {
	kind() Kind
}

type Validation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type NotFound struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

type FutureDate struct {
	DayKey string `json:"day_key"`
}

type AlreadyConfirmed struct {
	DayKey string `json:"day_key"`
}

type InvalidOperation struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

type AlreadyUnlocked struct {
	NodeID int64 `json:"node_id"`
}

type InsufficientSP struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
	NodeID    int64 `json:"node_id"`
}

type PrerequisiteNotMet struct {
	NodeID             int64 `json:"node_id"`
	PrerequisiteNodeID int64 `json:"prerequisite_node_id"` // 0 表示前置节点不存在
}

type PlayerStateNotFound struct {
	CategoryID int64 `json:"category_id"`
}

type InvalidArgument struct {
	Argument string `json:"argument"`
	Reason   string `json:"reason"`
}

type Retryable struct {
	Operation string `json:"operation"`
}

type Internal struct {
	Operation string `json:"operation"`
}

func (Validation) kind() Kind          { return KindValidation }
func (NotFound) kind() Kind            { return KindNotFound }
func (FutureDate) kind() Kind          { return KindFutureDate }
func (AlreadyConfirmed) kind() Kind    { return KindAlreadyConfirmed }
func (InvalidOperation) kind() Kind    { return KindInvalidOperation }
func (AlreadyUnlocked) kind() Kind     { return KindAlreadyUnlocked }
func (InsufficientSP) kind() Kind      { return KindInsufficientSP }
func (PrerequisiteNotMet) kind() Kind  { return KindPrerequisiteNotMet }
func (PlayerStateNotFound) kind() Kind { return KindPlayerStateNotFound }
func (InvalidArgument) kind() Kind     { return KindInvalidArgument }
func (Retryable) kind() Kind           { return KindRetryable }
func (Internal) kind() Kind            { return KindInternal }

// Error 领域错误
type Error struct {
	Kind   Kind
	Detail Detail
	Err    error // 底层原因（仅基础设施错误携带）
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %+v: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s %+v", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 根据载荷构造错误，Kind 由载荷决定
func New(d Detail) *Error {
	return &Error{Kind: d.kind(), Detail: d}
}

// Wrap 构造携带底层原因的错误
func Wrap(d Detail, err error) *Error {
	return &Error{Kind: d.kind(), Detail: d, Err: err}
}

// KindOf 提取错误类别；非领域错误返回 KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// DetailOf 提取指定类型的载荷
func DetailOf[T Detail](err error) (T, bool) {
	var zero T
	var e *Error
	if !errors.As(err, &e) {
		return zero, false
	}
	d, ok := e.Detail.(T)
	return d, ok
}

// ========== 构造函数 ==========

func NewValidation(field, reason string) *Error {
	return New(Validation{Field: field, Reason: reason})
}

func NewNotFound(resource string, id any) *Error {
	return New(NotFound{Resource: resource, ID: fmt.Sprint(id)})
}

func NewFutureDate(dayKey string) *Error {
	return New(FutureDate{DayKey: dayKey})
}

func NewAlreadyConfirmed(dayKey string) *Error {
	return New(AlreadyConfirmed{DayKey: dayKey})
}

func NewInvalidOperation(op, reason string) *Error {
	return New(InvalidOperation{Operation: op, Reason: reason})
}

func NewAlreadyUnlocked(nodeID int64) *Error {
	return New(AlreadyUnlocked{NodeID: nodeID})
}

func NewInsufficientSP(required, available, nodeID int64) *Error {
	return New(InsufficientSP{Required: required, Available: available, NodeID: nodeID})
}

func NewPrerequisiteNotMet(nodeID, prerequisiteNodeID int64) *Error {
	return New(PrerequisiteNotMet{NodeID: nodeID, PrerequisiteNodeID: prerequisiteNodeID})
}

func NewPlayerStateNotFound(categoryID int64) *Error {
	return New(PlayerStateNotFound{CategoryID: categoryID})
}

func NewInvalidArgument(arg, reason string) *Error {
	return New(InvalidArgument{Argument: arg, Reason: reason})
}

func NewRetryable(op string, err error) *Error {
	return Wrap(Retryable{Operation: op}, err)
}

func NewInternal(op string, err error) *Error {
	return Wrap(Internal{Operation: op}, err)
}
