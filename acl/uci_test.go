package acl

import (
	"os"
	"path/filepath"
	"testing"

	"apguard/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wirelessConfig = `config wifi-device 'radio0'
	option type 'mac80211'
	option channel '36'

config wifi-iface 'default_radio0'
	option device 'radio0'
	option mode 'ap'
	option ssid 'OpenWrt'
	option encryption 'psk2'
	option macfilter 'deny'
	list maclist '00:11:22:33:44:55'

config wifi-iface 'guest'
	option device 'radio0'
	option ssid 'Guest'
`

func TestUCIList_AppendAfterLastEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wireless")
	require.NoError(t, os.WriteFile(path, []byte(wirelessConfig), 0o600))
	list := NewUCIList(path)

	mac := core.MacAddress("aa:bb:cc:dd:ee:ff")
	present, err := list.Contains(mac)
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, list.Append(mac))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data),
		"\tlist maclist '00:11:22:33:44:55'\n\tlist maclist 'aa:bb:cc:dd:ee:ff'\n\nconfig wifi-iface 'guest'")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "mode preserved across rewrite")

	macs, err := list.List()
	require.NoError(t, err)
	assert.Equal(t, []core.MacAddress{"00:11:22:33:44:55", "aa:bb:cc:dd:ee:ff"}, macs)
}

func TestUCIList_AppendAfterMacfilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wireless")
	body := "config wifi-iface 'default_radio0'\n\toption macfilter 'deny'\n\toption ssid 'OpenWrt'\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	require.NoError(t, NewUCIList(path).Append("aa:bb:cc:dd:ee:ff"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"config wifi-iface 'default_radio0'\n\toption macfilter 'deny'\n\tlist maclist 'aa:bb:cc:dd:ee:ff'\n\toption ssid 'OpenWrt'\n",
		string(data))
}

func TestUCIList_ContainsIsCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wireless")
	require.NoError(t, os.WriteFile(path, []byte("\tlist maclist \"AA:BB:CC:DD:EE:FF\"\n"), 0o644))

	present, err := NewUCIList(path).Contains("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.True(t, present)
}

func TestUCIList_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wireless")
	require.NoError(t, os.WriteFile(path, []byte(wirelessConfig), 0o644))
	list := NewUCIList(path)

	removed, err := list.Remove("00:11:22:33:44:55")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = list.Remove("00:11:22:33:44:55")
	require.NoError(t, err)
	assert.False(t, removed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "maclist")
	assert.Contains(t, string(data), "option macfilter 'deny'")
}

func TestUCIList_MissingFileIsEmpty(t *testing.T) {
	list := NewUCIList(filepath.Join(t.TempDir(), "wireless"))

	present, err := list.Contains("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, list.Append("aa:bb:cc:dd:ee:ff"))
	macs, err := list.List()
	require.NoError(t, err)
	assert.Equal(t, []core.MacAddress{"aa:bb:cc:dd:ee:ff"}, macs)
}
