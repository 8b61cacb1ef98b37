package calls

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICEConfig_StunOnly(t *testing.T) {
	cfg := ICEConfig{
		STUNURLs: []string{"stun:stun.l.google.com:19302"},
	}

	servers := cfg.Servers()
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)
}

func TestICEConfig_StunAndTurn(t *testing.T) {
	cfg := ICEConfig{
		STUNURLs:     []string{"stun:stun.example.com:3478"},
		TURNURLs:     []string{"turn:turn.example.com:3478"},
		TURNUsername: "relay-user",
		TURNPassword: "relay-pass",
	}

	servers := cfg.Servers()
	require.Len(t, servers, 2)
	assert.Equal(t, "relay-user", servers[1].Username)
	assert.Equal(t, "relay-pass", servers[1].Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, servers[1].CredentialType)
}

func TestICEConfig_TurnWithoutCredentialsOmitted(t *testing.T) {
	cfg := ICEConfig{
		STUNURLs: []string{"stun:stun.example.com:3478"},
		TURNURLs: []string{"turn:turn.example.com:3478"},
	}

	servers := cfg.Servers()
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
}

func TestICEConfig_Empty(t *testing.T) {
	assert.Empty(t, ICEConfig{}.Servers())
}
