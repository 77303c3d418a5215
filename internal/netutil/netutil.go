package netutil

import (
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// FallbackIP is advertised when no route toward the registry can be resolved.
	FallbackIP = "127.0.0.1"
	// FallbackInterface is reported when no usable interface is found under sysfs.
	FallbackInterface = "eth0"
	// PlaceholderMAC is used when the interface MAC cannot be read.
	PlaceholderMAC = "00-00-00-00-00-00"
)

var macPattern = regexp.MustCompile(`^([0-9a-f]{2}-){5}[0-9a-f]{2}$`)

// Dialer resolves the local source address used to reach a remote UDP target.
// It exists so tests can substitute the routing decision.
type Dialer func(network, address string) (net.Conn, error)

// AdvertiseIP returns the local IPv4 address the host would use to reach
// registryURL. No packets are sent; the kernel picks the source address
// during the UDP "connect". Falls back to loopback when the route cannot
// be determined.
func AdvertiseIP(registryURL string, dial Dialer) string {
	if dial == nil {
		dial = net.Dial
	}
	host := "8.8.8.8"
	if registryURL != "" {
		if u, err := url.Parse(registryURL); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		}
	}
	conn, err := dial("udp4", net.JoinHostPort(host, "9"))
	if err != nil {
		return FallbackIP
	}
	defer conn.Close() //nolint:errcheck
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return FallbackIP
	}
	return addr.IP.String()
}

// PrimaryInterface returns the first non-loopback interface under sysRoot
// (normally /sys/class/net) whose operstate is "up". Interfaces are scanned
// in lexical order so the result is stable across calls.
func PrimaryInterface(sysRoot string) string {
	entries, err := os.ReadDir(sysRoot)
	if err != nil {
		return FallbackInterface
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "lo" {
			continue
		}
		state, err := os.ReadFile(filepath.Join(sysRoot, name, "operstate"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(state)) == "up" {
			return name
		}
	}
	return FallbackInterface
}

// InterfaceMAC reads the MAC address of the named interface from sysRoot and
// returns it in dash-separated lowercase form, e.g. "02-42-ac-11-00-02".
// Returns PlaceholderMAC when the address is missing or malformed.
func InterfaceMAC(sysRoot, name string) string {
	raw, err := os.ReadFile(filepath.Join(sysRoot, name, "address"))
	if err != nil {
		return PlaceholderMAC
	}
	mac := strings.ToLower(strings.TrimSpace(string(raw)))
	mac = strings.ReplaceAll(mac, ":", "-")
	if !macPattern.MatchString(mac) {
		return PlaceholderMAC
	}
	return mac
}
