package protocol

import (
	"encoding/binary"
	"fmt"
	"net"
)

// PacketBuilder fills a fixed-size, zeroed packet buffer at literal offsets.
// Bytes that are never written stay zero, which covers every padding field.
// Writes outside the buffer are programming errors and panic.
type PacketBuilder struct {
	buf []byte
}

// NewPacketBuilder returns a builder for a packet of exactly size bytes.
func NewPacketBuilder(size int) *PacketBuilder {
	return &PacketBuilder{buf: make([]byte, size)}
}

// PutByte writes v at off.
func (b *PacketBuilder) PutByte(off int, v byte) *PacketBuilder {
	b.buf[off] = v
	return b
}

// PutUint16 writes v big-endian at off.
func (b *PacketBuilder) PutUint16(off int, v uint16) *PacketBuilder {
	binary.BigEndian.PutUint16(b.buf[off:off+2], v)
	return b
}

// PutUint32 writes v big-endian at off.
func (b *PacketBuilder) PutUint32(off int, v uint32) *PacketBuilder {
	binary.BigEndian.PutUint32(b.buf[off:off+4], v)
	return b
}

// PutFixedString writes s into a width-byte field at off, truncating or
// zero-padding as needed.
func (b *PacketBuilder) PutFixedString(off, width int, s string) *PacketBuilder {
	field := b.buf[off : off+width]
	n := copy(field, s)
	clear(field[n:])
	return b
}

// PutBytes copies data at off.
func (b *PacketBuilder) PutBytes(off int, data []byte) *PacketBuilder {
	copy(b.buf[off:off+len(data)], data)
	return b
}

// Build returns the packet bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf
}

// Len returns the packet size.
func (b *PacketBuilder) Len() int {
	return len(b.buf)
}

// String returns a hex dump of the packet for debugging.
func (b *PacketBuilder) String() string {
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(b.buf), b.buf)
}

// ---- Outbound packet constructors ----

// ServerEntry is the single shard advertised in the server list.
type ServerEntry struct {
	Index       uint16
	Name        string
	PercentFull uint8
	Timezone    uint8
	Address     net.IP
}

// BuildServerList creates the server list packet (0xA8) for one shard.
// Format: [op:1][len:2][flags:1][count:2][index:2][name:32][full:1][tz:1][ip:4]
// The address is written in reverse byte order, as clients expect.
func BuildServerList(entry ServerEntry) []byte {
	b := NewPacketBuilder(ServerListLen)
	b.PutByte(0, OpServerList).
		PutUint16(1, ServerListLen).
		PutByte(3, ServerListFlags).
		PutUint16(4, 1).
		PutUint16(6, entry.Index).
		PutFixedString(8, ShardNameLen, entry.Name).
		PutByte(40, entry.PercentFull).
		PutByte(41, entry.Timezone)

	if ip4 := entry.Address.To4(); ip4 != nil {
		b.PutBytes(42, []byte{ip4[3], ip4[2], ip4[1], ip4[0]})
	}
	return b.Build()
}

// BuildServerRedirect creates the game server redirect packet (0x8C).
// Format: [op:1][ip:4][port:2][key:4], address in network order.
func BuildServerRedirect(addr net.IP, port uint16, key uint32) []byte {
	b := NewPacketBuilder(ServerRedirectLen)
	b.PutByte(0, OpServerRedirect)
	if ip4 := addr.To4(); ip4 != nil {
		b.PutBytes(1, ip4)
	}
	b.PutUint16(5, port).PutUint32(7, key)
	return b.Build()
}

// BuildFeatures creates the client features packet (0xB9).
// Format: [op:1][flags:2]
func BuildFeatures(flags uint16) []byte {
	return NewPacketBuilder(FeaturesLen).
		PutByte(0, OpFeatures).
		PutUint16(1, flags).
		Build()
}

// City is a starting location offered in the character list.
type City struct {
	Index    uint8
	Name     string
	Building string
}

// CharacterListLen returns the size of a character list packet.
func CharacterListLen(slots, cities int) int {
	return 4 + slots*CharacterSlotLen + 1 + cities*CityEntryLen + 4
}

// BuildCharacterList creates the character list packet (0xA9).
// Format: [op:1][len:2][slots:1][slots*(name:30,password:30)]
//
//	[cities:1][cities*(index:1,city:31,building:31)][flags:4]
//
// Passwords are never sent back and stay zero. Slots beyond
// MaxCharacterSlots are dropped.
func BuildCharacterList(characters []string, cities []City, flags uint32) []byte {
	if len(characters) > MaxCharacterSlots {
		characters = characters[:MaxCharacterSlots]
	}
	if len(cities) > 0xFF {
		cities = cities[:0xFF]
	}

	size := CharacterListLen(len(characters), len(cities))
	b := NewPacketBuilder(size)
	b.PutByte(0, OpCharacterList).
		PutUint16(1, uint16(size)).
		PutByte(3, byte(len(characters)))

	off := 4
	for _, name := range characters {
		b.PutFixedString(off, CredentialLen, name)
		off += CharacterSlotLen
	}

	b.PutByte(off, byte(len(cities)))
	off++
	for _, c := range cities {
		b.PutByte(off, c.Index).
			PutFixedString(off+1, CityNameLen, c.Name).
			PutFixedString(off+1+CityNameLen, CityNameLen, c.Building)
		off += CityEntryLen
	}

	b.PutUint32(off, flags)
	return b.Build()
}
