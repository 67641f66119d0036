package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Scrcpy packet header size
const PacketHeaderSize = 12

// Packet flags
const (
	PacketFlagConfig   = uint64(1) << 63
	PacketFlagKeyFrame = uint64(1) << 62
	PacketPTSMask      = PacketFlagKeyFrame - 1
)

// VideoPacket is one demuxed unit of the scrcpy video socket.
type VideoPacket struct {
	PTS        uint64
	Data       []byte
	IsKeyFrame bool
	IsConfig   bool
}

// DeviceMeta is the metadata block the scrcpy server sends on connect.
type DeviceMeta struct {
	DeviceName string
}

// ReadDeviceMeta reads device metadata from the stream. The scrcpy server
// sends only the device name, as a fixed 64-byte null-padded field.
func ReadDeviceMeta(reader io.Reader) (*DeviceMeta, error) {
	const deviceNameFieldLength = 64
	nameBytes := make([]byte, deviceNameFieldLength)
	if _, err := io.ReadFull(reader, nameBytes); err != nil {
		return nil, fmt.Errorf("failed to read device name: %w", err)
	}

	return &DeviceMeta{
		DeviceName: strings.TrimRight(string(nameBytes), "\x00"),
	}, nil
}

// ReadVideoPacket reads one video packet from the stream
func ReadVideoPacket(reader io.Reader) (*VideoPacket, error) {
	header := make([]byte, PacketHeaderSize)
	n, err := io.ReadFull(reader, header)
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	ptsFlags := binary.BigEndian.Uint64(header[0:8])
	packetSize := binary.BigEndian.Uint32(header[8:12])

	if packetSize == 0 {
		return nil, fmt.Errorf("invalid packet size: 0")
	}

	// Sanity check packet size
	if packetSize > 10*1024*1024 { // 10MB max
		return nil, fmt.Errorf("packet size too large: %d", packetSize)
	}

	data := make([]byte, packetSize)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("failed to read packet data: %w", err)
	}

	return &VideoPacket{
		PTS:        ptsFlags & PacketPTSMask,
		Data:       data,
		IsKeyFrame: (ptsFlags & PacketFlagKeyFrame) != 0,
		IsConfig:   (ptsFlags & PacketFlagConfig) != 0,
	}, nil
}
