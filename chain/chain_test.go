package chain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/gsecret/chain"
)

func TestForwardExecutorWalksInOrder(t *testing.T) {
	c := chain.New[string]("test")
	c.Append("a")
	c.Append("b")
	c.Append("c")

	exec := chain.NewForwardExecutor(c)

	s, ok := exec.Next()
	require.True(t, ok)
	assert.Equal(t, "a", s)

	s, ok = exec.Next()
	require.True(t, ok)
	assert.Equal(t, "b", s)

	s, ok = exec.Next()
	require.True(t, ok)
	assert.Equal(t, "c", s)

	_, ok = exec.Next()
	assert.False(t, ok)
}

func TestForwardExecutorCopyDoesNotMutateOriginal(t *testing.T) {
	c := chain.New[string]("test")
	c.Append("a")
	c.Append("b")

	exec := chain.NewForwardExecutor(c)
	_, _ = exec.Next()

	snapshot := exec.Copy()
	_, _ = snapshot.Next()

	assert.Equal(t, 0, exec.Index())
	assert.Equal(t, 1, snapshot.Index())
}

func TestReverseExecutorWalksBackwards(t *testing.T) {
	c := chain.New[string]("test")
	c.Append("a")
	c.Append("b")
	c.Append("c")

	exec := chain.NewReverseExecutor(c, 2)

	s, ok := exec.Next()
	require.True(t, ok)
	assert.Equal(t, "b", s)

	s, ok = exec.Next()
	require.True(t, ok)
	assert.Equal(t, "a", s)

	_, ok = exec.Next()
	assert.False(t, ok)
}

func TestControllerRejectsDuplicateChainNames(t *testing.T) {
	ctl := chain.NewController[string]()
	require.NoError(t, ctl.Register(chain.New[string]("key")))
	err := ctl.Register(chain.New[string]("key"))
	assert.Error(t, err)
}

func TestControllerExecutorForUnknownChain(t *testing.T) {
	ctl := chain.NewController[string]()
	_, err := ctl.Executor("missing")
	assert.Error(t, err)
}

func TestInterfaceBuildUnknownKind(t *testing.T) {
	iface := chain.NewInterface[string]("test")
	_, err := iface.Build("missing", nil)
	assert.Error(t, err)
}

func TestInterfaceRegisterDuplicateKind(t *testing.T) {
	iface := chain.NewInterface[string]("test")
	builder := func(map[string]any) (string, error) { return "stage", nil }
	require.NoError(t, iface.Register("kind", builder))
	err := iface.Register("kind", builder)
	assert.Error(t, err)
}
