package common

import "errors"

type ErrorKind string

const (
	ErrInvalidRequest      ErrorKind = "INVALID_REQUEST"
	ErrUnauthorized        ErrorKind = "UNAUTHORIZED"
	ErrNotFound            ErrorKind = "NOT_FOUND"
	ErrValidationMismatch  ErrorKind = "VALIDATION_MISMATCH"
	ErrUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	ErrUnknown             ErrorKind = "UNKNOWN"
)

// Error carrega a classificação do problema junto com uma mensagem
// apresentável ao cliente, sem vazar detalhes internos.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extrai a classificação de um erro qualquer; erros sem
// classificação explícita contam como ErrUnknown.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ErrUnknown
}

// MessageOf devolve a mensagem apresentável de um erro classificado.
func MessageOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "Erro interno do servidor"
}
