package types

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound 向量模型 ID 无法解析
	ErrModelNotFound = errors.New("embedding model not found")
	// ErrInvalidInput 调用参数非法
	ErrInvalidInput = errors.New("invalid input")
	// ErrModelInUse 模型仍被持有，拒绝卸载
	ErrModelInUse = errors.New("model in use")
)

// ConfigurationError 非法的任务请求，创建前同步返回
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// CollaboratorError 外部协作方（向量化、检索、生成、存储）失败，会中止任务
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError 包装协作方错误，err 为 nil 时返回 nil
func NewCollaboratorError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Op: op, Err: err}
}

// JudgeFormatError 评审输出无法解析或不符合 schema，只在评审内部使用
type JudgeFormatError struct {
	Track  string
	Reason string
}

func (e *JudgeFormatError) Error() string {
	return fmt.Sprintf("judge %s: malformed output: %s", e.Track, e.Reason)
}

// NotFoundError 资源不存在
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound 判断是否为资源不存在
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConfigurationError 判断是否为配置错误
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
