package protocol

import (
	"encoding/binary"
)

// Control message types (scrcpy 3.x protocol)
const (
	ControlMsgTypeInjectKeycode      = 0
	ControlMsgTypeInjectText         = 1
	ControlMsgTypeInjectTouchEvent   = 2
	ControlMsgTypeInjectScrollEvent  = 3
	ControlMsgTypeBackOrScreenOn     = 4
	ControlMsgTypeExpandNotification = 5
	ControlMsgTypeExpandSettings     = 6
	ControlMsgTypeCollapsePanels     = 7
	ControlMsgTypeGetClipboard       = 8
	ControlMsgTypeSetClipboard       = 9
	ControlMsgTypeSetDisplayPower    = 10
	ControlMsgTypeRotateDevice       = 11
	ControlMsgTypeResetVideo         = 17
)

// KeyEventAction is the AKEY_EVENT_ACTION_* value carried by key messages.
type KeyEventAction uint8

const (
	KeyActionDown KeyEventAction = 0
	KeyActionUp   KeyEventAction = 1
)

// ScreenPowerMode is the display power mode for SetDisplayPower messages.
type ScreenPowerMode uint8

const (
	ScreenPowerModeOff    ScreenPowerMode = 0
	ScreenPowerModeNormal ScreenPowerMode = 2
)

// Common Android keycodes
const (
	KeycodeHome       = 3
	KeycodeBack       = 4
	KeycodeVolumeUp   = 24
	KeycodeVolumeDown = 25
	KeycodePower      = 26
	KeycodeAppSwitch  = 187
)

// ControlMessage is one serialized unit on the scrcpy control socket.
type ControlMessage struct {
	Type uint8
	Data []byte
}

// Serialize encodes a control message as [type][payload]
func Serialize(msg *ControlMessage) []byte {
	buf := make([]byte, 0, 1+len(msg.Data))
	buf = append(buf, msg.Type)
	buf = append(buf, msg.Data...)
	return buf
}

// EncodeKeyEvent encodes a key injection payload.
// Format: [action:1][keycode:4][repeat:4][metastate:4] = 13 bytes
func EncodeKeyEvent(action KeyEventAction, keycode, repeat, metaState int) []byte {
	buf := make([]byte, 13)
	buf[0] = byte(action)
	binary.BigEndian.PutUint32(buf[1:5], uint32(keycode))
	binary.BigEndian.PutUint32(buf[5:9], uint32(repeat))
	binary.BigEndian.PutUint32(buf[9:13], uint32(metaState))
	return buf
}

// EncodeBackOrScreenOn encodes a back-or-screen-on payload.
// Format: [action:1] = 1 byte
func EncodeBackOrScreenOn(action KeyEventAction) []byte {
	return []byte{byte(action)}
}

// EncodeSetDisplayPower encodes a display power payload.
// Format: [mode:1] = 1 byte
func EncodeSetDisplayPower(mode ScreenPowerMode) []byte {
	return []byte{byte(mode)}
}
