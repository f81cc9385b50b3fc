// Package upnp requests a router port mapping for the listen port through
// an Internet Gateway Device. A failure to map is never fatal; the server
// just stays reachable on the LAN only.
package upnp

import (
	"context"
	"errors"
	"net"

	"github.com/huin/goupnp/dcps/internetgateway2"

	"github.com/zquestz/nexus/domain/port/outbound"
)

const mappingDescription = "Nexus server"

// portMappingClient is the subset of the IGD connection services we use.
type portMappingClient interface {
	AddPortMapping(remoteHost string, externalPort uint16, protocol string,
		internalPort uint16, internalClient string, enabled bool,
		description string, leaseDuration uint32) error
	DeletePortMapping(remoteHost string, externalPort uint16, protocol string) error
}

// Mapper holds one established mapping.
type Mapper struct {
	client portMappingClient
	port   uint16
	logger outbound.Logger
}

// Map discovers an IGD on the network and maps TCP port -> port.
func Map(ctx context.Context, port uint16, logger outbound.Logger) (*Mapper, error) {
	client, gatewayHost, err := discover(ctx)
	if err != nil {
		return nil, err
	}

	internalIP, err := internalAddress(gatewayHost)
	if err != nil {
		return nil, err
	}

	if err := client.AddPortMapping("", port, "TCP", port, internalIP, true, mappingDescription, 0); err != nil {
		return nil, err
	}

	logger.Info("UPnP port mapping established",
		"port", port, "gateway", gatewayHost, "internalIP", internalIP)
	return &Mapper{client: client, port: port, logger: logger}, nil
}

// Unmap removes the mapping; called on clean shutdown.
func (m *Mapper) Unmap() {
	if err := m.client.DeletePortMapping("", m.port, "TCP"); err != nil {
		m.logger.Warn("Failed to remove UPnP port mapping", "port", m.port, "error", err)
		return
	}
	m.logger.Info("UPnP port mapping removed", "port", m.port)
}

// discover tries the common IGD connection services in order of
// preference, returning the client and the gateway's control host.
func discover(ctx context.Context) (portMappingClient, string, error) {
	if clients, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return clients[0], clients[0].Location.Host, nil
	}
	if clients, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return clients[0], clients[0].Location.Host, nil
	}
	if clients, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return clients[0], clients[0].Location.Host, nil
	}
	return nil, "", errors.New("no UPnP gateway found")
}

// internalAddress finds our LAN address as seen from the gateway by
// opening a throwaway UDP association toward it.
func internalAddress(gatewayHost string) (string, error) {
	conn, err := net.Dial("udp", gatewayHost)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.New("unexpected local address type")
	}
	return localAddr.IP.String(), nil
}
