// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing activities, persisted snapshots and
// recognizers. They are not intended for production usage.
package testutil
