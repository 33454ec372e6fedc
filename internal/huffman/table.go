package huffman

// Code is a compressed bit pattern. Only the low Bits bits of Value are
// significant and they are emitted most significant bit first.
type Code struct {
	Value uint32
	Bits  uint8
}

// TerminalCode ends every compressed message.
var TerminalCode = Code{Value: 0xD, Bits: 4}

// table maps each byte value to its code. It is never written after init and
// is shared by every connection without locking.
var table = [256]Code{
	{0x000, 2}, {0x01F, 5}, {0x022, 6}, {0x034, 7}, // 0x00
	{0x075, 7}, {0x028, 6}, {0x03B, 6}, {0x032, 7}, // 0x04
	{0x0E0, 8}, {0x062, 8}, {0x056, 7}, {0x079, 8}, // 0x08
	{0x19D, 9}, {0x097, 8}, {0x02A, 6}, {0x057, 7}, // 0x0C
	{0x071, 8}, {0x05B, 8}, {0x1CC, 9}, {0x0A7, 8}, // 0x10
	{0x025, 7}, {0x04F, 7}, {0x066, 8}, {0x07D, 8}, // 0x14
	{0x191, 9}, {0x1CE, 9}, {0x03F, 7}, {0x090, 9}, // 0x18
	{0x059, 8}, {0x07B, 8}, {0x091, 8}, {0x0C6, 8}, // 0x1C
	{0x02D, 6}, {0x186, 9}, {0x06F, 8}, {0x093, 9}, // 0x20
	{0x1CC, 10}, {0x05A, 8}, {0x1AE, 10}, {0x1C0, 10}, // 0x24
	{0x148, 9}, {0x14A, 9}, {0x082, 9}, {0x19F, 10}, // 0x28
	{0x171, 9}, {0x120, 9}, {0x0E7, 9}, {0x1F3, 10}, // 0x2C
	{0x14B, 9}, {0x100, 9}, {0x190, 9}, {0x013, 6}, // 0x30
	{0x161, 9}, {0x125, 9}, {0x133, 9}, {0x195, 9}, // 0x34
	{0x173, 9}, {0x1CA, 9}, {0x086, 9}, {0x1E9, 9}, // 0x38
	{0x0DB, 9}, {0x1EC, 9}, {0x08B, 9}, {0x085, 9}, // 0x3C
	{0x00A, 5}, {0x096, 8}, {0x09C, 8}, {0x1C3, 9}, // 0x40
	{0x19C, 9}, {0x08F, 9}, {0x18F, 9}, {0x091, 9}, // 0x44
	{0x087, 9}, {0x0C6, 9}, {0x177, 9}, {0x089, 9}, // 0x48
	{0x0D6, 9}, {0x08C, 9}, {0x1EE, 9}, {0x1EB, 9}, // 0x4C
	{0x084, 9}, {0x164, 9}, {0x175, 9}, {0x1CD, 9}, // 0x50
	{0x05E, 8}, {0x088, 9}, {0x12B, 9}, {0x172, 9}, // 0x54
	{0x10A, 9}, {0x08D, 9}, {0x13A, 9}, {0x11C, 9}, // 0x58
	{0x1E1, 10}, {0x1E0, 10}, {0x187, 9}, {0x1DC, 10}, // 0x5C
	{0x1DF, 10}, {0x074, 7}, {0x19F, 9}, {0x08D, 8}, // 0x60
	{0x0E4, 8}, {0x079, 7}, {0x0EA, 9}, {0x0E1, 9}, // 0x64
	{0x040, 8}, {0x041, 7}, {0x10B, 9}, {0x0B0, 9}, // 0x68
	{0x06A, 8}, {0x0C1, 8}, {0x071, 7}, {0x078, 7}, // 0x6C
	{0x0B1, 8}, {0x14C, 9}, {0x043, 7}, {0x076, 8}, // 0x70
	{0x066, 7}, {0x04D, 7}, {0x08A, 9}, {0x02F, 6}, // 0x74
	{0x0C9, 8}, {0x0CE, 9}, {0x149, 9}, {0x160, 9}, // 0x78
	{0x1BA, 10}, {0x19E, 10}, {0x39F, 10}, {0x0E5, 9}, // 0x7C
	{0x194, 9}, {0x184, 9}, {0x126, 9}, {0x030, 7}, // 0x80
	{0x06C, 8}, {0x121, 9}, {0x1E8, 9}, {0x1C1, 10}, // 0x84
	{0x11D, 10}, {0x163, 10}, {0x385, 10}, {0x3DB, 10}, // 0x88
	{0x17D, 10}, {0x106, 10}, {0x397, 10}, {0x24E, 10}, // 0x8C
	{0x02E, 7}, {0x098, 8}, {0x33C, 10}, {0x32E, 10}, // 0x90
	{0x1E9, 10}, {0x0BF, 9}, {0x3DF, 10}, {0x1DD, 10}, // 0x94
	{0x32D, 10}, {0x2ED, 10}, {0x30B, 10}, {0x107, 10}, // 0x98
	{0x2E8, 10}, {0x3DE, 10}, {0x125, 10}, {0x1E8, 10}, // 0x9C
	{0x0E9, 9}, {0x1CD, 10}, {0x1B5, 10}, {0x165, 9}, // 0xA0
	{0x232, 10}, {0x2E1, 10}, {0x3AE, 11}, {0x3C6, 11}, // 0xA4
	{0x3E2, 11}, {0x205, 10}, {0x29A, 10}, {0x248, 10}, // 0xA8
	{0x2CD, 10}, {0x23B, 10}, {0x3C5, 11}, {0x251, 10}, // 0xAC
	{0x2E9, 10}, {0x252, 10}, {0x1EA, 9}, {0x3A0, 11}, // 0xB0
	{0x391, 11}, {0x23C, 10}, {0x392, 11}, {0x3D5, 11}, // 0xB4
	{0x233, 10}, {0x2CC, 10}, {0x390, 11}, {0x1BB, 10}, // 0xB8
	{0x3A1, 11}, {0x3C4, 11}, {0x211, 10}, {0x203, 10}, // 0xBC
	{0x12A, 9}, {0x231, 10}, {0x3E0, 11}, {0x29B, 10}, // 0xC0
	{0x3D7, 11}, {0x202, 10}, {0x3AD, 11}, {0x213, 10}, // 0xC4
	{0x253, 10}, {0x32C, 10}, {0x23D, 10}, {0x23F, 10}, // 0xC8
	{0x32F, 10}, {0x11C, 10}, {0x384, 10}, {0x31C, 10}, // 0xCC
	{0x17C, 10}, {0x30A, 10}, {0x2E0, 10}, {0x276, 10}, // 0xD0
	{0x250, 10}, {0x3E3, 11}, {0x396, 10}, {0x18F, 10}, // 0xD4
	{0x204, 10}, {0x206, 10}, {0x230, 10}, {0x265, 10}, // 0xD8
	{0x212, 10}, {0x23E, 10}, {0x3AC, 11}, {0x393, 11}, // 0xDC
	{0x3E1, 11}, {0x1DE, 10}, {0x3D6, 11}, {0x31D, 10}, // 0xE0
	{0x3E5, 11}, {0x3E4, 11}, {0x207, 10}, {0x3C7, 11}, // 0xE4
	{0x277, 10}, {0x3D4, 11}, {0x0C0, 8}, {0x162, 10}, // 0xE8
	{0x3DA, 10}, {0x124, 10}, {0x1B4, 10}, {0x264, 10}, // 0xEC
	{0x33D, 10}, {0x1D1, 10}, {0x1AF, 10}, {0x39E, 10}, // 0xF0
	{0x24F, 10}, {0x373, 11}, {0x249, 10}, {0x372, 11}, // 0xF4
	{0x167, 9}, {0x210, 10}, {0x23A, 10}, {0x1B8, 10}, // 0xF8
	{0x3AF, 11}, {0x18E, 10}, {0x2EC, 10}, {0x062, 7}, // 0xFC
}

// Lookup returns the code for b.
func Lookup(b byte) Code {
	return table[b]
}

// Table returns a copy of the byte code table.
func Table() [256]Code {
	return table
}
