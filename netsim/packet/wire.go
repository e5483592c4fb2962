// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LinkType is the link-layer framing used by a device.
type LinkType int

const (
	// LinkPPP is point-to-point framing.
	LinkPPP = LinkType(iota)

	// LinkEthernet is Ethernet II framing.
	LinkEthernet

	// LinkWifi is IEEE 802.11 data framing with LLC/SNAP.
	LinkWifi
)

// String returns the string representation of the link type.
func (lt LinkType) String() string {
	switch lt {
	case LinkPPP:
		return "ppp"
	case LinkEthernet:
		return "ethernet"
	case LinkWifi:
		return "wifi"
	default:
		return "unknown"
	}
}

// PcapLinkType returns the pcap data link type.
func (lt LinkType) PcapLinkType() layers.LinkType {
	switch lt {
	case LinkEthernet:
		return layers.LinkTypeEthernet
	case LinkWifi:
		return layers.LinkTypeIEEE802_11
	default:
		return layers.LinkTypePPP
	}
}

// Overhead returns the bytes added by the framing, trailers included.
func (lt LinkType) Overhead() int {
	switch lt {
	case LinkEthernet:
		return 14 + 4
	case LinkWifi:
		return 24 + 8 + 4
	default:
		return 2
	}
}

// DSDirection is the distribution system direction of an 802.11 data frame.
type DSDirection int

const (
	// DSNone is a frame that stays inside the service set.
	DSNone = DSDirection(iota)

	// DSToAP is a frame sent by a station to the access point.
	DSToAP

	// DSFromAP is a frame sent by the access point to a station.
	DSFromAP
)

// LinkHeader contains the link-layer addressing of a frame.
type LinkHeader struct {
	// Src is the transmitter hardware address.
	Src net.HardwareAddr

	// Dst is the receiver hardware address.
	Dst net.HardwareAddr

	// BSSID is the access point address, only used by 802.11 framing.
	BSSID net.HardwareAddr

	// DS is the direction, only used by 802.11 framing.
	DS DSDirection
}

// dot11 returns the 802.11 data header for hdr.
func (hdr LinkHeader) dot11() *layers.Dot11 {
	d := &layers.Dot11{Type: layers.Dot11TypeData}
	switch hdr.DS {
	case DSToAP:
		d.Flags = layers.Dot11FlagsToDS
		d.Address1, d.Address2, d.Address3 = hdr.BSSID, hdr.Src, hdr.Dst
	case DSFromAP:
		d.Flags = layers.Dot11FlagsFromDS
		d.Address1, d.Address2, d.Address3 = hdr.Dst, hdr.BSSID, hdr.Src
	default:
		d.Address1, d.Address2, d.Address3 = hdr.Dst, hdr.Src, hdr.BSSID
	}
	return d
}

// Encode serializes the packet using the given framing.
//
// The payload is synthesized as PayloadSize zero bytes. Trailers (FCS)
// are not included, as customary in captures.
func Encode(lt LinkType, hdr LinkHeader, pkt *Packet) ([]byte, error) {
	var stack []gopacket.SerializableLayer
	switch lt {
	case LinkEthernet:
		stack = append(stack, &layers.Ethernet{
			SrcMAC:       hdr.Src,
			DstMAC:       hdr.Dst,
			EthernetType: layers.EthernetTypeIPv4,
		})

	case LinkWifi:
		stack = append(stack,
			hdr.dot11(),
			&layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 0x03},
			&layers.SNAP{
				OrganizationalCode: []byte{0, 0, 0},
				Type:               layers.EthernetTypeIPv4,
			},
		)

	default:
		stack = append(stack, &layers.PPP{PPPType: layers.PPPTypeIPv4})
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      pkt.TTL,
		Id:       uint16(pkt.UID),
		Protocol: layers.IPProtocol(pkt.IPProtocol),
		SrcIP:    net.IP(pkt.SrcAddr.AsSlice()),
		DstIP:    net.IP(pkt.DstAddr.AsSlice()),
	}
	stack = append(stack, ip)

	switch pkt.IPProtocol {
	case IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort:    layers.TCPPort(pkt.SrcPort),
			DstPort:    layers.TCPPort(pkt.DstPort),
			Seq:        pkt.Seq,
			Ack:        pkt.Ack,
			DataOffset: 5,
			Window:     pkt.Window,
			FIN:        pkt.Flags&TCPFlagFIN != 0,
			SYN:        pkt.Flags&TCPFlagSYN != 0,
			RST:        pkt.Flags&TCPFlagRST != 0,
			PSH:        pkt.Flags&TCPFlagPSH != 0,
			ACK:        pkt.Flags&TCPFlagACK != 0,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		stack = append(stack, tcp)

	case IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(pkt.SrcPort),
			DstPort: layers.UDPPort(pkt.DstPort),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		stack = append(stack, udp)
	}

	stack = append(stack, gopacket.Payload(make([]byte, pkt.PayloadSize)))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
