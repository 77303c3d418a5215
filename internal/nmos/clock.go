package nmos

import (
	"regexp"
	"strings"
)

// PlaceholderGMID is declared when the daemon reports no usable grandmaster.
const PlaceholderGMID = "00-00-00-00-00-00-00-00"

var gmidPattern = regexp.MustCompile(`^([0-9a-f]{2}-){7}[0-9a-f]{2}$`)

// Clock is the IS-04 Node clock declaration.
type Clock struct {
	Name      string `json:"name"`
	RefType   string `json:"ref_type"`
	Traceable bool   `json:"traceable"`
	Version   string `json:"version"`
	GMID      string `json:"gmid"`
	Locked    bool   `json:"locked"`
}

// CoerceGMID normalizes a daemon-reported grandmaster ID to the schema's
// eight-octet dashed form, substituting the placeholder when the value is
// absent or malformed.
func CoerceGMID(value any) string {
	s, ok := value.(string)
	if !ok {
		return PlaceholderGMID
	}
	candidate := strings.ToLower(strings.TrimSpace(s))
	if !gmidPattern.MatchString(candidate) {
		return PlaceholderGMID
	}
	return candidate
}

// ClockFromPTP projects the daemon's PTP status onto the clock the Node
// resource declares. A nil status (daemon unreachable) yields an unlocked
// clock with the placeholder grandmaster.
func ClockFromPTP(status map[string]any) Clock {
	locked := status != nil && status["status"] == "locked"
	var gmid any
	if status != nil {
		gmid = status["gmid"]
	}
	return Clock{
		Name:      "clk0",
		RefType:   "ptp",
		Traceable: locked,
		Version:   "IEEE1588-2008",
		GMID:      CoerceGMID(gmid),
		Locked:    locked,
	}
}
