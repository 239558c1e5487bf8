/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * BCD encode/decode for device_time_get/device_time_set
 */

package hidock

import "fmt"

// bcdEncode encodes 0..99 as a packed BCD byte
func bcdEncode(x int) byte {
	return byte((x/10)<<4 | (x % 10))
}

// bcdDecode decodes a packed BCD byte to 0..99
func bcdDecode(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

// DeviceTime is the decoded form of the 7-byte BCD device_time payload
type DeviceTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	Known  bool
}

// String renders the time, or "unknown" if Known is false
func (t DeviceTime) String() string {
	if !t.Known {
		return "unknown"
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second)
}

// encodeDeviceTime packs a DeviceTime into the 7 BCD bytes the wire expects
func encodeDeviceTime(t DeviceTime) []byte {
	return []byte{
		bcdEncode(t.Year / 100),
		bcdEncode(t.Year % 100),
		bcdEncode(t.Month),
		bcdEncode(t.Day),
		bcdEncode(t.Hour),
		bcdEncode(t.Minute),
		bcdEncode(t.Second),
	}
}

// decodeDeviceTime unpacks 7 BCD bytes. An all-zero payload decodes to
// the unknown sentinel.
func decodeDeviceTime(body []byte) (DeviceTime, error) {
	if len(body) != 7 {
		return DeviceTime{}, NewError(ErrProtocol, nil, "device_time: expected 7 bytes, got %d", len(body))
	}

	century := bcdDecode(body[0])
	year := century*100 + bcdDecode(body[1])
	month := bcdDecode(body[2])
	day := bcdDecode(body[3])
	hour := bcdDecode(body[4])
	minute := bcdDecode(body[5])
	second := bcdDecode(body[6])

	if year == 0 && month == 0 && day == 0 && hour == 0 && minute == 0 && second == 0 {
		return DeviceTime{Known: false}, nil
	}

	return DeviceTime{
		Year: year, Month: month, Day: day,
		Hour: hour, Minute: minute, Second: second,
		Known: true,
	}, nil
}
