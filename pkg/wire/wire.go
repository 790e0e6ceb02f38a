// Package wire implements the bit-exact Ethernet, ARP, IPv4, and TCP header
// codecs that NetworkInterface and Router operate on. Each header type is a
// plain struct with a Put (encode) and Decode (parse) pair over a byte
// slice, following the soypat-seqs eth package's layout and naming rather
// than reaching for a generic binary-marshalling library: these headers are
// fixed-size, bit-packed, and checksum-bearing in ways no general-purpose
// codec handles directly.
package wire

import "encoding/binary"

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

// SizeEthernetHeader is the fixed size, in bytes, of an Ethernet header with
// no VLAN tag.
const SizeEthernetHeader = 14

// BroadcastMAC is the reserved all-ones Ethernet destination meaning
// "deliver to every host on this segment".
var BroadcastMAC = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EthernetHeader is the 14-byte Ethernet frame header.
type EthernetHeader struct {
	Destination [6]byte
	Source      [6]byte
	EtherType   EtherType
}

// Put marshals h onto buf, which must be at least SizeEthernetHeader bytes.
func (h *EthernetHeader) Put(buf []byte) {
	_ = buf[SizeEthernetHeader-1]
	copy(buf[0:6], h.Destination[:])
	copy(buf[6:12], h.Source[:])
	binary.BigEndian.PutUint16(buf[12:14], uint16(h.EtherType))
}

// DecodeEthernetHeader parses an Ethernet header from the first
// SizeEthernetHeader bytes of buf.
func DecodeEthernetHeader(buf []byte) (h EthernetHeader, ok bool) {
	if len(buf) < SizeEthernetHeader {
		return EthernetHeader{}, false
	}
	copy(h.Destination[:], buf[0:6])
	copy(h.Source[:], buf[6:12])
	h.EtherType = EtherType(binary.BigEndian.Uint16(buf[12:14]))
	return h, true
}

// EthernetFrame is a full Ethernet frame: header plus opaque payload.
type EthernetFrame struct {
	Header  EthernetHeader
	Payload []byte
}

// Serialize encodes the frame as a contiguous byte slice.
func (f *EthernetFrame) Serialize() []byte {
	buf := make([]byte, SizeEthernetHeader+len(f.Payload))
	f.Header.Put(buf)
	copy(buf[SizeEthernetHeader:], f.Payload)
	return buf
}

// DecodeEthernetFrame parses a full Ethernet frame out of buf.
func DecodeEthernetFrame(buf []byte) (f EthernetFrame, ok bool) {
	hdr, ok := DecodeEthernetHeader(buf)
	if !ok {
		return EthernetFrame{}, false
	}
	f.Header = hdr
	f.Payload = append([]byte{}, buf[SizeEthernetHeader:]...)
	return f, true
}

// ARP operation codes.
const (
	ARPOpRequest uint16 = 1
	ARPOpReply   uint16 = 2
)

// SizeARPv4Header is the fixed size, in bytes, of an ARP message for
// Ethernet/IPv4 (the only combination this stack produces or accepts).
const SizeARPv4Header = 28

// ARPv4Message is an ARP request/reply binding a 4-byte IPv4 address to a
// 6-byte Ethernet address.
type ARPv4Message struct {
	HardwareType   uint16
	ProtoType      uint16
	HardwareLength uint8
	ProtoLength    uint8
	Operation      uint16
	SenderHardware [6]byte
	SenderProto    [4]byte
	TargetHardware [6]byte
	TargetProto    [4]byte
}

// NewARPv4Message fills in the fixed HW/proto type and length fields for an
// Ethernet/IPv4 ARP message, leaving Operation and the address fields for
// the caller.
func NewARPv4Message(op uint16) ARPv4Message {
	return ARPv4Message{
		HardwareType:   1,
		ProtoType:      uint16(EtherTypeIPv4),
		HardwareLength: 6,
		ProtoLength:    4,
		Operation:      op,
	}
}

// Put marshals m onto buf, which must be at least SizeARPv4Header bytes.
func (m *ARPv4Message) Put(buf []byte) {
	_ = buf[SizeARPv4Header-1]
	binary.BigEndian.PutUint16(buf[0:2], m.HardwareType)
	binary.BigEndian.PutUint16(buf[2:4], m.ProtoType)
	buf[4] = m.HardwareLength
	buf[5] = m.ProtoLength
	binary.BigEndian.PutUint16(buf[6:8], m.Operation)
	copy(buf[8:14], m.SenderHardware[:])
	copy(buf[14:18], m.SenderProto[:])
	copy(buf[18:24], m.TargetHardware[:])
	copy(buf[24:28], m.TargetProto[:])
}

// DecodeARPv4Message parses an ARP message from buf. It rejects any message
// whose hardware/protocol type and length fields do not describe
// Ethernet/IPv4, and any opcode other than request or reply.
func DecodeARPv4Message(buf []byte) (m ARPv4Message, ok bool) {
	if len(buf) < SizeARPv4Header {
		return ARPv4Message{}, false
	}
	m.HardwareType = binary.BigEndian.Uint16(buf[0:2])
	m.ProtoType = binary.BigEndian.Uint16(buf[2:4])
	m.HardwareLength = buf[4]
	m.ProtoLength = buf[5]
	m.Operation = binary.BigEndian.Uint16(buf[6:8])
	copy(m.SenderHardware[:], buf[8:14])
	copy(m.SenderProto[:], buf[14:18])
	copy(m.TargetHardware[:], buf[18:24])
	copy(m.TargetProto[:], buf[24:28])

	if m.HardwareType != 1 || m.ProtoType != uint16(EtherTypeIPv4) ||
		m.HardwareLength != 6 || m.ProtoLength != 4 {
		return ARPv4Message{}, false
	}
	if m.Operation != ARPOpRequest && m.Operation != ARPOpReply {
		return ARPv4Message{}, false
	}
	return m, true
}

// SizeIPv4Header is the fixed size, in bytes, of an IPv4 header with no
// options (IHL == 5).
const SizeIPv4Header = 20

// IPFlags is the 3-bit flags field of an IPv4 header (top 3 bits of the
// flags|fragment-offset word; the fragment offset itself is unused here
// since fragmentation is out of scope).
type IPFlags uint8

const (
	IPFlagDontFragment IPFlags = 1 << 1
	IPFlagMoreFragment IPFlags = 1 << 0
)

// IPv4Header is the fixed 20-byte IPv4 header (no options).
type IPv4Header struct {
	IHL         uint8 // internet header length in 32-bit words; always 5 when produced
	ToS         uint8
	TotalLength uint16
	ID          uint16
	Flags       IPFlags
	TTL         uint8
	Protocol    uint8
	Checksum    uint16
	Source      [4]byte
	Destination [4]byte
}

// ProtocolTCP is the IPv4 protocol number for TCP.
const ProtocolTCP = 6

// Put marshals h onto buf, which must be at least SizeIPv4Header bytes.
// IHL is force-set to 5: this stack never produces options.
func (h *IPv4Header) Put(buf []byte) {
	_ = buf[SizeIPv4Header-1]
	buf[0] = (4 << 4) | 5
	buf[1] = h.ToS
	binary.BigEndian.PutUint16(buf[2:4], h.TotalLength)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Flags)<<13)
	buf[8] = h.TTL
	buf[9] = h.Protocol
	binary.BigEndian.PutUint16(buf[10:12], h.Checksum)
	copy(buf[12:16], h.Source[:])
	copy(buf[16:20], h.Destination[:])
}

// DecodeIPv4Header parses an IPv4 header from the start of buf, returning
// the header and the byte offset of the payload (4*IHL). IHL < 5 is
// rejected; IHL > 5 is accepted with the option bytes skipped.
func DecodeIPv4Header(buf []byte) (h IPv4Header, payloadOffset int, ok bool) {
	if len(buf) < SizeIPv4Header {
		return IPv4Header{}, 0, false
	}
	version := buf[0] >> 4
	ihl := buf[0] & 0x0f
	if version != 4 || ihl < 5 {
		return IPv4Header{}, 0, false
	}
	h.IHL = ihl
	h.ToS = buf[1]
	h.TotalLength = binary.BigEndian.Uint16(buf[2:4])
	h.ID = binary.BigEndian.Uint16(buf[4:6])
	h.Flags = IPFlags(binary.BigEndian.Uint16(buf[6:8]) >> 13)
	h.TTL = buf[8]
	h.Protocol = buf[9]
	h.Checksum = binary.BigEndian.Uint16(buf[10:12])
	copy(h.Source[:], buf[12:16])
	copy(h.Destination[:], buf[16:20])
	offset := int(ihl) * 4
	if len(buf) < offset {
		return IPv4Header{}, 0, false
	}
	return h, offset, true
}

// CalculateChecksum computes the one's-complement header checksum with the
// checksum field itself zeroed.
func (h *IPv4Header) CalculateChecksum() uint16 {
	var buf [SizeIPv4Header]byte
	saved := h.Checksum
	h.Checksum = 0
	h.Put(buf[:])
	h.Checksum = saved
	return onesComplementChecksum(buf[:])
}

// IPv4Datagram is a decoded IPv4 header plus its payload.
type IPv4Datagram struct {
	Header  IPv4Header
	Payload []byte
}

// Serialize encodes the datagram, recomputing the header checksum.
func (d *IPv4Datagram) Serialize() []byte {
	d.Header.TotalLength = uint16(SizeIPv4Header + len(d.Payload))
	d.Header.Checksum = d.Header.CalculateChecksum()
	buf := make([]byte, SizeIPv4Header+len(d.Payload))
	d.Header.Put(buf)
	copy(buf[SizeIPv4Header:], d.Payload)
	return buf
}

// DecodeIPv4Datagram parses a full IPv4 datagram (header + payload) from
// buf.
func DecodeIPv4Datagram(buf []byte) (d IPv4Datagram, ok bool) {
	hdr, offset, ok := DecodeIPv4Header(buf)
	if !ok {
		return IPv4Datagram{}, false
	}
	end := int(hdr.TotalLength)
	if end < offset || end > len(buf) {
		end = len(buf)
	}
	d.Header = hdr
	d.Payload = append([]byte{}, buf[offset:end]...)
	return d, true
}

// SizeTCPHeader is the fixed size, in bytes, of a TCP header with no
// options (data offset == 5).
const SizeTCPHeader = 20

// TCP flag bits, in the low 8 bits of the flags byte.
const (
	TCPFlagFIN uint8 = 1 << 0
	TCPFlagSYN uint8 = 1 << 1
	TCPFlagRST uint8 = 1 << 2
	TCPFlagPSH uint8 = 1 << 3
	TCPFlagACK uint8 = 1 << 4
	TCPFlagURG uint8 = 1 << 5
	TCPFlagECE uint8 = 1 << 6
	TCPFlagCWR uint8 = 1 << 7
)

// TCPHeader is the fixed 20-byte TCP header (no options).
type TCPHeader struct {
	SourcePort uint16
	DestPort   uint16
	Seqno      uint32
	Ackno      uint32
	DataOffset uint8 // in 32-bit words; produced value is always 5
	Flags      uint8
	Window     uint16
	Checksum   uint16
	Urgent     uint16
}

// Put marshals h onto buf, which must be at least SizeTCPHeader bytes.
// DataOffset is force-set to 5: this stack never produces TCP options.
func (h *TCPHeader) Put(buf []byte) {
	_ = buf[SizeTCPHeader-1]
	binary.BigEndian.PutUint16(buf[0:2], h.SourcePort)
	binary.BigEndian.PutUint16(buf[2:4], h.DestPort)
	binary.BigEndian.PutUint32(buf[4:8], h.Seqno)
	binary.BigEndian.PutUint32(buf[8:12], h.Ackno)
	buf[12] = 5 << 4
	buf[13] = h.Flags
	binary.BigEndian.PutUint16(buf[14:16], h.Window)
	binary.BigEndian.PutUint16(buf[16:18], h.Checksum)
	binary.BigEndian.PutUint16(buf[18:20], h.Urgent)
}

// DecodeTCPHeader parses a TCP header from the start of buf, returning the
// header and the byte offset of the payload (4*data-offset, i.e. options
// are skipped rather than decoded).
func DecodeTCPHeader(buf []byte) (h TCPHeader, payloadOffset int, ok bool) {
	if len(buf) < SizeTCPHeader {
		return TCPHeader{}, 0, false
	}
	h.SourcePort = binary.BigEndian.Uint16(buf[0:2])
	h.DestPort = binary.BigEndian.Uint16(buf[2:4])
	h.Seqno = binary.BigEndian.Uint32(buf[4:8])
	h.Ackno = binary.BigEndian.Uint32(buf[8:12])
	h.DataOffset = buf[12] >> 4
	h.Flags = buf[13]
	h.Window = binary.BigEndian.Uint16(buf[14:16])
	h.Checksum = binary.BigEndian.Uint16(buf[16:18])
	h.Urgent = binary.BigEndian.Uint16(buf[18:20])
	if h.DataOffset < 5 {
		return TCPHeader{}, 0, false
	}
	offset := int(h.DataOffset) * 4
	if len(buf) < offset {
		return TCPHeader{}, 0, false
	}
	return h, offset, true
}

// TCPSegment is a decoded TCP header plus payload.
type TCPSegment struct {
	Header  TCPHeader
	Payload []byte
}

// pseudoHeaderLen is the size, in bytes, of the IPv4 pseudo-header used in
// the TCP checksum.
const pseudoHeaderLen = 12

// CalculateChecksum computes the TCP checksum over the IPv4 pseudo-header,
// the TCP header (with its checksum field zeroed), and the payload.
func (s *TCPSegment) CalculateChecksum(src, dst [4]byte) uint16 {
	tcpLen := SizeTCPHeader + len(s.Payload)
	buf := make([]byte, pseudoHeaderLen+tcpLen)
	copy(buf[0:4], src[:])
	copy(buf[4:8], dst[:])
	buf[8] = 0
	buf[9] = ProtocolTCP
	binary.BigEndian.PutUint16(buf[10:12], uint16(tcpLen))

	saved := s.Header.Checksum
	s.Header.Checksum = 0
	s.Header.Put(buf[pseudoHeaderLen : pseudoHeaderLen+SizeTCPHeader])
	s.Header.Checksum = saved
	copy(buf[pseudoHeaderLen+SizeTCPHeader:], s.Payload)

	return onesComplementChecksum(buf)
}

// Serialize encodes the segment, recomputing its checksum against the given
// IPv4 source/destination pair.
func (s *TCPSegment) Serialize(src, dst [4]byte) []byte {
	s.Header.Checksum = s.CalculateChecksum(src, dst)
	buf := make([]byte, SizeTCPHeader+len(s.Payload))
	s.Header.Put(buf)
	copy(buf[SizeTCPHeader:], s.Payload)
	return buf
}

// DecodeTCPSegment parses a full TCP segment (header + payload) out of buf.
func DecodeTCPSegment(buf []byte) (s TCPSegment, ok bool) {
	hdr, offset, ok := DecodeTCPHeader(buf)
	if !ok {
		return TCPSegment{}, false
	}
	s.Header = hdr
	s.Payload = append([]byte{}, buf[offset:]...)
	return s, true
}

// onesComplementChecksum computes the 16-bit one's-complement checksum (the
// IPv4/TCP/UDP checksum algorithm): sum all 16-bit big-endian words, fold
// any carry back in, then complement.
func onesComplementChecksum(buf []byte) uint16 {
	var sum uint32
	n := len(buf)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(buf[i])<<8 | uint32(buf[i+1])
	}
	if n%2 == 1 {
		sum += uint32(buf[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
