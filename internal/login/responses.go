package login

import (
	"net"

	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/protocol"
)

// Responses holds the fixed answers the login server hands out. It is built
// once from configuration and shared read-only by every connection.
type Responses struct {
	Server         protocol.ServerEntry
	RedirectIP     net.IP
	RedirectPort   uint16
	SessionKey     uint32
	FeatureFlags   uint16
	Characters     []string
	Cities         []protocol.City
	CharacterFlags uint32
}

// ResponsesFromConfig derives the login responses from shard_data.
func ResponsesFromConfig(sd config.ShardData) Responses {
	cities := make([]protocol.City, len(sd.Cities))
	for i, c := range sd.Cities {
		cities[i] = protocol.City{Index: uint8(i), Name: c.Name, Building: c.Building}
	}
	return Responses{
		Server: protocol.ServerEntry{
			Index:       uint16(sd.ShardIndex),
			Name:        sd.ShardName,
			PercentFull: uint8(sd.PercentFull),
			Timezone:    uint8(sd.Timezone),
			Address:     sd.ShardIP(),
		},
		RedirectIP:     sd.RedirectIP(),
		RedirectPort:   uint16(sd.RedirectPort),
		SessionKey:     sd.SessionKey,
		FeatureFlags:   sd.FeatureFlags,
		Characters:     append([]string(nil), sd.Characters...),
		Cities:         cities,
		CharacterFlags: sd.CharacterListFlags,
	}
}

// ServerList builds the 0xA8 reply to an account login.
func (r Responses) ServerList() []byte {
	return protocol.BuildServerList(r.Server)
}

// Redirect builds the 0x8C reply to a server select.
func (r Responses) Redirect() []byte {
	return protocol.BuildServerRedirect(r.RedirectIP, r.RedirectPort, r.SessionKey)
}

// Features builds the uncompressed 0xB9 packet.
func (r Responses) Features() []byte {
	return protocol.BuildFeatures(r.FeatureFlags)
}

// CharacterList builds the uncompressed 0xA9 packet.
func (r Responses) CharacterList() []byte {
	return protocol.BuildCharacterList(r.Characters, r.Cities, r.CharacterFlags)
}
