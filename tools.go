//go:build tools
// +build tools

// Package tools pins the code generators run by go generate, mockgen for the mocks package.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
