//go:build tools

package tools

// Tool dependencies tracked with blank imports so `go run` uses the pinned
// versions. Regenerate mocks with: go run github.com/vektra/mockery/v2
import (
	_ "github.com/vektra/mockery/v2"
)
