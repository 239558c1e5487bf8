/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Command layer: thin, total-function wrappers around Session.SendAndReceive
 */

package hidock

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// guardBusy fast-fails any command other than file_transfer and
// file_list while a file-list stream is in progress.
func (s *Session) guardBusy(commandID uint16) error {
	if commandID == CmdFileTransfer || commandID == CmdFileList {
		return nil
	}
	if s.FileListStreaming() {
		return NewError(ErrBusy, nil, "session: file list streaming in progress")
	}
	return nil
}

// DeviceInfo is the decoded device_info response
type DeviceInfo struct {
	VersionCode string
	Serial      string
}

// DeviceInfo issues the device_info command
func (s *Session) DeviceInfo() (DeviceInfo, error) {
	if err := s.guardBusy(CmdDeviceInfo); err != nil {
		return DeviceInfo{}, err
	}

	resp, err := s.SendAndReceive(CmdDeviceInfo, nil, DefaultCommandTimeout)
	if err != nil {
		return DeviceInfo{}, err
	}

	if len(resp.Body) < 4 {
		return DeviceInfo{}, NewError(ErrProtocol, nil, "device_info: short response (%d bytes)", len(resp.Body))
	}

	version := fmt.Sprintf("%d.%d.%d", resp.Body[1], resp.Body[2], resp.Body[3])
	serial := strings.TrimRight(string(resp.Body[4:]), "\x00")

	return DeviceInfo{VersionCode: version, Serial: serial}, nil
}

// DeviceTimeGet issues the device_time_get command
func (s *Session) DeviceTimeGet() (DeviceTime, error) {
	if err := s.guardBusy(CmdDeviceTimeGet); err != nil {
		return DeviceTime{}, err
	}

	resp, err := s.SendAndReceive(CmdDeviceTimeGet, nil, DefaultCommandTimeout)
	if err != nil {
		return DeviceTime{}, err
	}

	return decodeDeviceTime(resp.Body)
}

// DeviceTimeSet issues the device_time_set command
func (s *Session) DeviceTimeSet(t DeviceTime) error {
	if err := s.guardBusy(CmdDeviceTimeSet); err != nil {
		return err
	}

	resp, err := s.SendAndReceive(CmdDeviceTimeSet, encodeDeviceTime(t), DefaultCommandTimeout)
	if err != nil {
		return err
	}

	return statusByte(resp.Body, "device_time_set")
}

// FileCount issues the file_count command
func (s *Session) FileCount() (uint32, error) {
	if err := s.guardBusy(CmdFileCount); err != nil {
		return 0, err
	}

	resp, err := s.SendAndReceive(CmdFileCount, nil, DefaultCommandTimeout)
	if err != nil {
		return 0, err
	}

	if len(resp.Body) == 0 {
		return 0, nil
	}
	if len(resp.Body) < 4 {
		return 0, NewError(ErrProtocol, nil, "file_count: short response (%d bytes)", len(resp.Body))
	}

	return binary.BigEndian.Uint32(resp.Body), nil
}

// CardInfo is the decoded card_info response
type CardInfo struct {
	UsedMB    uint32
	TotalMB   uint32
	StatusRaw uint32
}

// CardInfo issues the card_info command
func (s *Session) CardInfo() (CardInfo, error) {
	if err := s.guardBusy(CmdCardInfo); err != nil {
		return CardInfo{}, err
	}

	resp, err := s.SendAndReceive(CmdCardInfo, nil, DefaultCommandTimeout)
	if err != nil {
		return CardInfo{}, err
	}
	if len(resp.Body) < 12 {
		return CardInfo{}, NewError(ErrProtocol, nil, "card_info: short response (%d bytes)", len(resp.Body))
	}

	return CardInfo{
		UsedMB:    binary.BigEndian.Uint32(resp.Body[0:4]),
		TotalMB:   binary.BigEndian.Uint32(resp.Body[4:8]),
		StatusRaw: binary.BigEndian.Uint32(resp.Body[8:12]),
	}, nil
}

// FormatCard issues the format_card command. confirmCode is the
// device's required confirmation value (1..4).
func (s *Session) FormatCard(confirmCode byte) error {
	if err := s.guardBusy(CmdFormatCard); err != nil {
		return err
	}

	resp, err := s.SendAndReceive(CmdFormatCard, []byte{confirmCode}, FileBodyOverallTimeout)
	if err != nil {
		return err
	}

	return statusByte(resp.Body, "format_card")
}

// CurrentRecording issues the current_recording command. An empty
// response body means no recording is in progress.
func (s *Session) CurrentRecording() (string, error) {
	if err := s.guardBusy(CmdCurrentRecording); err != nil {
		return "", err
	}

	resp, err := s.SendAndReceive(CmdCurrentRecording, nil, DefaultCommandTimeout)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(string(resp.Body), "\x00"), nil
}

// DeviceSettings is the decoded settings_get/settings_set payload
type DeviceSettings struct {
	AutoRecord        bool
	AutoPlay          bool
	BluetoothTone     bool
	NotificationSound bool
}

// SettingsGet issues the settings_get command
func (s *Session) SettingsGet() (DeviceSettings, error) {
	if err := s.guardBusy(CmdSettingsGet); err != nil {
		return DeviceSettings{}, err
	}

	resp, err := s.SendAndReceive(CmdSettingsGet, nil, DefaultCommandTimeout)
	if err != nil {
		return DeviceSettings{}, err
	}
	if len(resp.Body) < 4 {
		return DeviceSettings{}, NewError(ErrProtocol, nil, "settings_get: short response (%d bytes)", len(resp.Body))
	}

	return DeviceSettings{
		AutoRecord:        resp.Body[0] != 0,
		AutoPlay:          resp.Body[1] != 0,
		BluetoothTone:     resp.Body[2] != 0,
		NotificationSound: resp.Body[3] != 0,
	}, nil
}

// SettingsSet issues the settings_set command
func (s *Session) SettingsSet(v DeviceSettings) error {
	if err := s.guardBusy(CmdSettingsSet); err != nil {
		return err
	}

	body := []byte{
		boolByte(v.AutoRecord), boolByte(v.AutoPlay),
		boolByte(v.BluetoothTone), boolByte(v.NotificationSound),
	}

	resp, err := s.SendAndReceive(CmdSettingsSet, body, DefaultCommandTimeout)
	if err != nil {
		return err
	}

	return statusByte(resp.Body, "settings_set")
}

// DeleteFile issues the delete_file command
func (s *Session) DeleteFile(filename string) error {
	if err := s.guardBusy(CmdDeleteFile); err != nil {
		return err
	}

	resp, err := s.SendAndReceive(CmdDeleteFile, []byte(filename), DefaultCommandTimeout)
	if err != nil {
		return err
	}

	if len(resp.Body) == 0 {
		return NewError(ErrProtocol, nil, "delete_file: empty response")
	}

	switch resp.Body[0] {
	case 0:
		return nil
	case 1:
		return NewError(ErrNotExists, nil, "delete_file: %q does not exist", filename)
	default:
		return NewError(ErrProtocol, nil, "delete_file: device reported failure (status %d)", resp.Body[0])
	}
}

func statusByte(body []byte, op string) error {
	if len(body) == 0 {
		return NewError(ErrProtocol, nil, "%s: empty response", op)
	}
	if body[0] != 0 {
		return NewError(ErrProtocol, nil, "%s: device reported failure (status %d)", op, body[0])
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
