package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluxbase-eu/restcore/internal/engine"
)

// TestExecutorImplementations verifies the types the engine can execute through.
func TestExecutorImplementations(t *testing.T) {
	t.Run("Connection implements Executor", func(t *testing.T) {
		var exec Executor = (*Connection)(nil)
		assert.Nil(t, exec.(*Connection))
	})

	t.Run("transaction adapter implements Executor", func(t *testing.T) {
		var exec Executor = txExecutor{}
		assert.NotNil(t, exec)
	})

	t.Run("Engine implements engine.Engine", func(t *testing.T) {
		var e engine.Engine = NewEngine(&fakeExecutor{}, nil)
		assert.NotNil(t, e)
	})
}
