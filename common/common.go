// Package common holds process-wide constants and the logger constructor
// shared by all binaries.
package common

var Version = "dev"

const PackageName = "tee-rng-worker"
