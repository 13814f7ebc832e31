package lode

import (
	"errors"
	"fmt"
	"strings"
)

// Journal storage failure classes. Match with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrDiskFull         = errors.New("no space left on device")
	ErrTimeout          = errors.New("operation timed out")
	ErrThrottled        = errors.New("rate limited")
	// ErrAuth is a credentials failure: missing, expired or malformed.
	ErrAuth = errors.New("authentication failed")
	// ErrAccessDenied means the credentials were accepted but lack permission.
	ErrAccessDenied = errors.New("access denied")
	ErrNetwork      = errors.New("network error")
	ErrUnclassified = errors.New("storage error")
)

// Storage operations named in StorageError.Op.
const (
	OpWrite = "write"
	OpRead  = "read"
	OpInit  = "init"
)

// StorageError is a journal storage failure tagged with its class.
// The original cause stays reachable through errors.As and errors.Is.
type StorageError struct {
	Kind error
	Op   string
	Path string // partition, snapshot or dataset, if any
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is matches the class sentinel as well as the wrapped chain.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// WrapWriteError classifies a failed partition write. Nil stays nil.
func WrapWriteError(err error, path string) error {
	return wrap(OpWrite, path, err)
}

// WrapReadError classifies a failed snapshot read. Nil stays nil.
func WrapReadError(err error, path string) error {
	return wrap(OpRead, path, err)
}

// WrapInitError classifies a failed dataset open. Nil stays nil.
func WrapInitError(err error, dataset string) error {
	return wrap(OpInit, dataset, err)
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Kind: classifyError(err), Op: op, Path: path, Err: err}
}

// Class returns a short label for the storage class of err, suitable
// for log fields. Errors that never touched storage report "".
func Class(err error) string {
	var se *StorageError
	if !errors.As(err, &se) {
		return ""
	}
	for _, r := range classRules {
		if se.Kind == r.kind {
			return r.label
		}
	}
	return "unclassified"
}

// Retryable reports whether err is a storage failure that may clear up
// on its own: timeouts, throttling and network faults.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrThrottled) || errors.Is(err, ErrNetwork)
}

// classRule maps message fragments to a class. Rules are tried in order,
// so the narrower access-denied fragments precede the broader ones.
type classRule struct {
	kind      error
	label     string
	fragments []string
}

var classRules = []classRule{
	{ErrAccessDenied, "access_denied", []string{"AccessDenied", "Forbidden", "403"}},
	{ErrPermissionDenied, "permission_denied", []string{"permission denied", "EACCES"}},
	{ErrNotFound, "not_found", []string{"no such file", "does not exist", "not found", "ENOENT", "404", "NoSuchKey", "NoSuchBucket"}},
	{ErrDiskFull, "disk_full", []string{"no space left", "disk full", "ENOSPC", "quota exceeded"}},
	{ErrTimeout, "timeout", []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, "throttled", []string{"SlowDown", "rate exceeded", "throttl", "429", "TooManyRequests"}},
	{ErrAuth, "auth", []string{"NoCredentialProviders", "credentials", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "401", "Unauthorized"}},
	{ErrNetwork, "network", []string{"connection refused", "connection reset", "no route to host", "network unreachable", "no such host", "dial tcp"}},
}

func classifyError(err error) error {
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return ErrTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, r := range classRules {
		for _, f := range r.fragments {
			if strings.Contains(msg, strings.ToLower(f)) {
				return r.kind
			}
		}
	}
	return ErrUnclassified
}
