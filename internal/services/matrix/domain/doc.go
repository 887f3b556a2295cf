// Package domain holds the matrix engine's core types and validation
// rules: participant references, RACI roles, and task field constraints.
package domain
