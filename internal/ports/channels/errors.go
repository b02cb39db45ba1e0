package channels

import "errors"

// SendError clasifica fallas de envío.
// Permanent = no tiene sentido reintentar (dirección inválida, 4xx del proveedor).
// Transient = reintentable (timeout, 5xx, broker caído).
type SendError struct {
	Permanent bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return "channel send error"
	}
	return e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	return &SendError{Permanent: true, Err: err}
}

func Transient(err error) error {
	return &SendError{Permanent: false, Err: err}
}

// IsPermanent reporta si err (o algo en su cadena) es una falla permanente.
// Errores sin clasificar se tratan como transient: mejor reintentar de más
// que perder una alerta de emergencia.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Permanent
	}
	return false
}
