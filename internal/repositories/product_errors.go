package repositories

import (
	"errors"
	"fmt"
)

// ProductErrorCode enumerates repository error causes for product persistence.
type ProductErrorCode string

const (
	ProductErrorUnknown ProductErrorCode = "product_unknown"
	// ProductErrorNotFound indicates no row matched the lookup.
	ProductErrorNotFound ProductErrorCode = "product_not_found"
	// ProductErrorSlugTaken indicates the slug unique constraint rejected the write.
	ProductErrorSlugTaken ProductErrorCode = "product_slug_taken"
	// ProductErrorExternalIDTaken indicates another product already carries the variation id.
	ProductErrorExternalIDTaken ProductErrorCode = "product_external_id_taken"
	// ProductErrorUnavailable indicates the store could not be reached.
	ProductErrorUnavailable ProductErrorCode = "product_store_unavailable"
)

// ProductError wraps store failures with machine readable codes.
type ProductError struct {
	Op      string
	Code    ProductErrorCode
	Message string
	Err     error
}

func (e *ProductError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *ProductError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProductError) IsNotFound() bool { return e != nil && e.Code == ProductErrorNotFound }

func (e *ProductError) IsConflict() bool {
	return e != nil && (e.Code == ProductErrorSlugTaken || e.Code == ProductErrorExternalIDTaken)
}

func (e *ProductError) IsUnavailable() bool { return e != nil && e.Code == ProductErrorUnavailable }

// NewProductError constructs a typed product error.
func NewProductError(op string, code ProductErrorCode, err error) *ProductError {
	message := string(code)
	if err != nil {
		message = fmt.Sprintf("%s: %v", code, err)
	}
	return &ProductError{Op: op, Code: code, Message: message, Err: err}
}

// HasProductErrorCode reports whether err carries the given product error code.
func HasProductErrorCode(err error, code ProductErrorCode) bool {
	var productErr *ProductError
	return errors.As(err, &productErr) && productErr.Code == code
}

// IsNotFound reports whether err is a repository error describing a missing row.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsUnavailable reports whether err is a repository error describing a backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// IsConflict reports whether err is a repository error describing a unique constraint violation.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
