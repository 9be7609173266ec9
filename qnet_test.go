package qnet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderChannelParams(t *testing.T) {
	params := []ChannelParam{
		{Attribute: "name%%chan_b", Param: "length", Value: "1"},
		{Attribute: "node%%Bob", Param: "length", Value: "2"},
		{Attribute: "*", Param: "length", Value: "3"},
		{Attribute: "name%%chan_a", Param: "length", Value: "4"},
		{Attribute: "*", Param: "lossdb", Value: "5"},
	}
	ordered := reorderChannelParams(params)
	values := []string{}
	for _, cp := range ordered {
		values = append(values, cp.Value)
	}
	assert.Equal(t, []string{"3", "5", "2", "4", "1"}, values)
}

func TestApplyChannelParams(t *testing.T) {
	t.Run("narrowest selection wins", func(t *testing.T) {
		topo, err := BuildMidpoint(1000.0, fiber)
		require.NoError(t, err)
		err = ApplyChannelParams(topo, []ChannelParam{
			{Attribute: "name%%chan_B", Param: "length", Value: "7000"},
			{Attribute: "*", Param: "length", Value: "5000"},
			{Attribute: "node%%Alice", Param: "ploss", Value: "0.5"},
		})
		require.NoError(t, err)
		assert.Equal(t, 5000.0, topo.Channel("chan_A").LengthM)
		assert.Equal(t, 7000.0, topo.Channel("chan_B").LengthM)
		assert.Equal(t, 0.5, topo.Channel("chan_A").Loss.InitialLossProb)
		assert.Equal(t, 0.0, topo.Channel("chan_B").Loss.InitialLossProb)

		// expected success follows the overrides
		want := topo.Channel("chan_A").TransmitProb() * topo.Channel("chan_B").TransmitProb()
		assert.InDelta(t, want, topo.PathSuccessProb(), 1e-15)
	})

	t.Run("selection without a channel", func(t *testing.T) {
		topo, err := BuildMidpoint(1000.0, fiber)
		require.NoError(t, err)
		err = ApplyChannelParams(topo, []ChannelParam{{Attribute: "name%%chan_C", Param: "length", Value: "1"}})
		assert.ErrorIs(t, err, ErrConstruction)
	})

	t.Run("value outside its domain", func(t *testing.T) {
		topo, err := BuildMidpoint(1000.0, fiber)
		require.NoError(t, err)
		err = ApplyChannelParams(topo, []ChannelParam{{Attribute: "*", Param: "length", Value: "-1"}})
		assert.ErrorIs(t, err, ErrDomain)

		err = ApplyChannelParams(topo, []ChannelParam{{Attribute: "*", Param: "ploss", Value: "2"}})
		assert.ErrorIs(t, err, ErrDomain)

		err = ApplyChannelParams(topo, []ChannelParam{{Attribute: "*", Param: "lossdb", Value: "lots"}})
		assert.ErrorIs(t, err, ErrDomain)
	})
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.yaml")
	require.NoError(t, os.WriteFile(present, []byte("name: x\n"), 0o600))

	ok, err := CheckReadableFiles([]string{present, ""})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = CheckReadableFiles([]string{filepath.Join(dir, "absent.yaml")})
	assert.False(t, ok)
	assert.Error(t, err)

	ok, err = CheckOutputFiles([]string{filepath.Join(dir, "new.json")})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = CheckOutputFiles([]string{filepath.Join(dir, "nodir", "new.json")})
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestUseYAMLExt(t *testing.T) {
	assert.True(t, UseYAMLExt("cfg.yaml"))
	assert.True(t, UseYAMLExt("cfg.yml"))
	assert.True(t, UseYAMLExt("cfg.YAML"))
	assert.True(t, UseYAMLExt("dir.json/cfg.YML"))
	assert.False(t, UseYAMLExt("cfg.json"))
}
