package calls

import (
	"github.com/pion/webrtc/v3"
)

// ICEConfig holds STUN/TURN settings handed to clients before negotiation
type ICEConfig struct {
	STUNURLs     []string
	TURNURLs     []string
	TURNUsername string
	TURNPassword string
}

// Servers assembles the ICE server list clients pass to their peer
// connections. TURN entries are omitted when no credentials are configured;
// a credential-less TURN server is rejected by browsers anyway.
func (c ICEConfig) Servers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer

	if len(c.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNURLs})
	}

	if len(c.TURNURLs) > 0 && c.TURNUsername != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:           c.TURNURLs,
			Username:       c.TURNUsername,
			Credential:     c.TURNPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}

	return servers
}
