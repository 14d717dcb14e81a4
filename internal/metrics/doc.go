// Package metrics provides Prometheus metric collection for the
// routing process: HTTP surface, task lifecycle, specialist branches,
// and identity delegation.
//
// All metrics register through promauto under one namespace. HTTP
// status codes are grouped into 2xx/3xx/4xx/5xx classes to keep label
// cardinality bounded.
package metrics
