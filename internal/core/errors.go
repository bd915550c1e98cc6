package core

import "fmt"

// InvalidRangeError rejects a request before any work begins.
type InvalidRangeError struct {
	Start  string
	End    string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range [%s, %s]: %s", e.Start, e.End, e.Reason)
}

// StoreFetchError is a failed read. The day it belongs to cannot be computed.
type StoreFetchError struct {
	Op   string
	Date Date
	Err  error
}

func (e *StoreFetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Op, e.Date, e.Err)
}

func (e *StoreFetchError) Unwrap() error { return e.Err }

// StoreUpsertError is a failed write of a single balance record.
type StoreUpsertError struct {
	Date Date
	Err  error
}

func (e *StoreUpsertError) Error() string {
	return fmt.Sprintf("upsert balance for %s: %v", e.Date, e.Err)
}

func (e *StoreUpsertError) Unwrap() error { return e.Err }
