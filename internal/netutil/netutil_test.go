package netutil

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	net.Conn
	local net.Addr
}

func (c *fakeConn) LocalAddr() net.Addr { return c.local }
func (c *fakeConn) Close() error        { return nil }

func TestAdvertiseIPUsesRegistryHost(t *testing.T) {
	var dialed string
	dial := func(network, address string) (net.Conn, error) {
		dialed = address
		return &fakeConn{local: &net.UDPAddr{IP: net.ParseIP("192.0.2.15"), Port: 44321}}, nil
	}

	ip := AdvertiseIP("http://registry.example.com:8235", dial)

	assert.Equal(t, "192.0.2.15", ip)
	assert.Equal(t, "registry.example.com:9", dialed)
}

func TestAdvertiseIPFallsBackOnDialError(t *testing.T) {
	dial := func(network, address string) (net.Conn, error) {
		return nil, net.ErrClosed
	}
	assert.Equal(t, FallbackIP, AdvertiseIP("http://10.0.0.1", dial))
}

func TestAdvertiseIPFallsBackOnBadURL(t *testing.T) {
	var dialed string
	dial := func(network, address string) (net.Conn, error) {
		dialed = address
		return nil, net.ErrClosed
	}
	assert.Equal(t, FallbackIP, AdvertiseIP("://not-a-url", dial))
	assert.Equal(t, "8.8.8.8:9", dialed)
}

func writeIface(t *testing.T, root, name, operstate, address string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "operstate"), []byte(operstate+"\n"), 0o644))
	if address != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "address"), []byte(address+"\n"), 0o644))
	}
}

func TestPrimaryInterfaceSkipsLoopbackAndDown(t *testing.T) {
	root := t.TempDir()
	writeIface(t, root, "lo", "up", "00:00:00:00:00:00")
	writeIface(t, root, "eth0", "down", "02:42:ac:11:00:02")
	writeIface(t, root, "eth1", "up", "02:42:ac:11:00:03")

	assert.Equal(t, "eth1", PrimaryInterface(root))
}

func TestPrimaryInterfaceFallback(t *testing.T) {
	root := t.TempDir()
	writeIface(t, root, "lo", "up", "")

	assert.Equal(t, FallbackInterface, PrimaryInterface(root))
	assert.Equal(t, FallbackInterface, PrimaryInterface(filepath.Join(root, "missing")))
}

func TestInterfaceMAC(t *testing.T) {
	root := t.TempDir()
	writeIface(t, root, "eth0", "up", "02:42:AC:11:00:02")

	assert.Equal(t, "02-42-ac-11-00-02", InterfaceMAC(root, "eth0"))
	assert.Equal(t, PlaceholderMAC, InterfaceMAC(root, "eth9"))
}

func TestInterfaceMACRejectsMalformed(t *testing.T) {
	root := t.TempDir()
	writeIface(t, root, "eth0", "up", "garbage")

	assert.Equal(t, PlaceholderMAC, InterfaceMAC(root, "eth0"))
}
