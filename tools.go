//go:build tools

// Package tools pins mockgen so `go generate ./...` resolves it from go.mod.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
