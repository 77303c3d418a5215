package nmos

import "fmt"

// Identity carries the stable UUIDs minted once per install and reused for
// every registration.
type Identity struct {
	NodeID     string
	DeviceID   string
	ReceiverID string
}

// Endpoint is one reachable Node API binding.
type Endpoint struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Protocol      string `json:"protocol"`
	Authorization bool   `json:"authorization"`
}

// API describes the Node API surface advertised via IS-04.
type API struct {
	Versions  []string   `json:"versions"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Interface is one physical interface declared on the Node.
type Interface struct {
	Name      string  `json:"name"`
	ChassisID *string `json:"chassis_id"`
	PortID    string  `json:"port_id"`
}

// Node is the IS-04 Node resource.
type Node struct {
	ID          string              `json:"id"`
	Version     string              `json:"version"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Tags        map[string][]string `json:"tags"`
	Href        string              `json:"href"`
	API         API                 `json:"api"`
	Services    []any               `json:"services"`
	Controls    []any               `json:"controls"`
	Caps        map[string]any      `json:"caps"`
	Clocks      []Clock             `json:"clocks"`
	Interfaces  []Interface         `json:"interfaces"`
	Hostname    string              `json:"hostname"`
}

// Control is one IS-05 control endpoint advertised on the Device.
type Control struct {
	Href string `json:"href"`
	Type string `json:"type"`
}

// Device is the IS-04 Device resource.
type Device struct {
	ID          string              `json:"id"`
	Version     string              `json:"version"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Type        string              `json:"type"`
	NodeID      string              `json:"node_id"`
	Controls    []Control           `json:"controls"`
	Receivers   []string            `json:"receivers"`
	Senders     []string            `json:"senders"`
	Tags        map[string][]string `json:"tags"`
}

// ReceiverCaps constrains what the receiver accepts.
type ReceiverCaps struct {
	MediaTypes []string `json:"media_types"`
}

// Subscription reflects the receiver's current attachment.
type Subscription struct {
	SenderID *string `json:"sender_id"`
	Active   bool    `json:"active"`
}

// Receiver is the IS-04 Receiver resource.
type Receiver struct {
	ID                string              `json:"id"`
	Version           string              `json:"version"`
	Label             string              `json:"label"`
	Description       string              `json:"description"`
	Format            string              `json:"format"`
	Caps              ReceiverCaps        `json:"caps"`
	Transport         string              `json:"transport"`
	DeviceID          string              `json:"device_id"`
	Subscription      Subscription        `json:"subscription"`
	InterfaceBindings []string            `json:"interface_bindings"`
	Tags              map[string][]string `json:"tags"`
}

// ResourceBuilder stamps fresh Node/Device/Receiver resources from the
// node's identity and advertised endpoint. Version strings are taken at
// build time so re-registrations always carry a newer version.
type ResourceBuilder struct {
	Identity           Identity
	NodeLabel          string
	DeviceLabel        string
	ReceiverLabel      string
	APIHost            string
	APIPort            int
	InterfaceName      string
	PortID             string
	NodeVersions       []string
	ConnectionVersions []string
}

// Node builds the Node resource with the given clock declaration.
func (b ResourceBuilder) Node(clock Clock) Node {
	return Node{
		ID:          b.Identity.NodeID,
		Version:     Version(),
		Label:       b.NodeLabel,
		Description: fmt.Sprintf("AES67 receiver on %s", b.APIHost),
		Tags:        map[string][]string{},
		Href:        fmt.Sprintf("http://%s:%d/x-nmos/node/%s", b.APIHost, b.APIPort, b.NodeVersions[0]),
		API: API{
			Versions: b.NodeVersions,
			Endpoints: []Endpoint{
				{Host: b.APIHost, Port: b.APIPort, Protocol: "http", Authorization: false},
			},
		},
		Services:   []any{},
		Controls:   []any{},
		Caps:       map[string]any{},
		Clocks:     []Clock{clock},
		Interfaces: []Interface{{Name: b.InterfaceName, ChassisID: nil, PortID: b.PortID}},
		Hostname:   b.APIHost,
	}
}

// Device builds the Device resource. Controllers discover the IS-05
// Connection API through the sr-ctrl control entries.
func (b ResourceBuilder) Device() Device {
	controls := make([]Control, 0, len(b.ConnectionVersions))
	for _, v := range b.ConnectionVersions {
		controls = append(controls, Control{
			Href: fmt.Sprintf("http://%s:%d/x-nmos/connection/%s", b.APIHost, b.APIPort, v),
			Type: fmt.Sprintf("urn:x-nmos:control:sr-ctrl/%s", v),
		})
	}
	return Device{
		ID:          b.Identity.DeviceID,
		Version:     Version(),
		Label:       b.DeviceLabel,
		Description: "AES67 mono receiver device",
		Type:        "urn:x-nmos:device:generic",
		NodeID:      b.Identity.NodeID,
		Controls:    controls,
		Receivers:   []string{b.Identity.ReceiverID},
		Senders:     []string{},
		Tags:        map[string][]string{},
	}
}

// Receiver builds the Receiver resource. active mirrors whether the sink is
// currently configured on the daemon.
func (b ResourceBuilder) Receiver(active bool) Receiver {
	return Receiver{
		ID:          b.Identity.ReceiverID,
		Version:     Version(),
		Label:       b.ReceiverLabel,
		Description: "Mono AES67 RTP receiver",
		Format:      "urn:x-nmos:format:audio",
		Caps:        ReceiverCaps{MediaTypes: []string{"audio/L24"}},
		Transport:   "urn:x-nmos:transport:rtp.mcast",
		DeviceID:    b.Identity.DeviceID,
		Subscription: Subscription{
			SenderID: nil,
			Active:   active,
		},
		InterfaceBindings: []string{b.InterfaceName},
		Tags:              map[string][]string{},
	}
}
