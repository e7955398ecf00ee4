package logging

import "log/slog"

// Common field names for consistent logging across the relay.
const (
	FieldService  = "service"
	FieldPlatform = "platform"
	FieldCodeID   = "code_id"
	FieldSender   = "sender"
	FieldIP       = "ip"
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldStatus   = "status"
	FieldError    = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Platform returns a slog attribute for the originating platform tag.
func Platform(tag string) slog.Attr {
	return slog.String(FieldPlatform, tag)
}

// CodeID returns a slog attribute for a stored code's ID.
func CodeID(id string) slog.Attr {
	return slog.String(FieldCodeID, id)
}

// Sender returns a slog attribute for the triggering email's sender.
func Sender(addr string) slog.Attr {
	return slog.String(FieldSender, addr)
}

// IP returns a slog attribute for the client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
