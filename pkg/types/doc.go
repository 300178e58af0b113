// Package types defines the Repository interface, the generic record and
// job models, configuration, and standard errors for the Notedeck
// persistence layer.
package types
