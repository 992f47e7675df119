package logging

import (
	"fmt"
	"log/slog"
)

// Error returns a slog attribute for errors.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// TypeOf returns a slog attribute with the type name of the given value.
func TypeOf(key string, v any) slog.Attr {
	return slog.String(key, fmt.Sprintf("%T", v))
}

// Component returns a slog attribute for a component type.
func Component(v any) slog.Attr {
	return TypeOf("component", v)
}

// UserID returns a slog attribute for the user requesting access.
func UserID(id int64) slog.Attr {
	return slog.Int64("user_id", id)
}

// PatientID returns a slog attribute for the patient a resource belongs to.
func PatientID(id int64) slog.Attr {
	return slog.Int64("patient_id", id)
}

// ResourceID returns a slog attribute for the resource being accessed.
func ResourceID(id int64) slog.Attr {
	return slog.Int64("resource_id", id)
}

// Action returns a slog attribute for the attempted action.
func Action(action string) slog.Attr {
	return slog.String("action", action)
}

// PolicyName returns a slog attribute for the policy that produced a decision.
func PolicyName(name string) slog.Attr {
	return slog.String("policy", name)
}
