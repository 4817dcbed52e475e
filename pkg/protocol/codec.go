package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

// terminator ends every well-formed frame.
const terminator = "#\n"

// Encode builds a complete gateway->device frame:
// "0xFFFF*SCOS,<vendor>,<imei>,<code>[,<f1>,<f2>,...]#\n".
// Fields are joined verbatim; Encode never escapes commas within a field.
func Encode(vendor, imei string, code Command, fields ...string) string {
	var b strings.Builder
	b.WriteString(GatewayPreamble)
	b.WriteByte(',')
	b.WriteString(vendor)
	b.WriteByte(',')
	b.WriteString(imei)
	b.WriteByte(',')
	b.WriteString(string(code))
	for _, f := range fields {
		b.WriteByte(',')
		b.WriteString(f)
	}
	b.WriteString(terminator)
	return b.String()
}

// splitFrame strips the "#\n" terminator and splits the remainder on
// commas. A frame without the terminator is a decode error.
func splitFrame(data []byte) ([]string, error) {
	s := string(data)
	if !strings.HasSuffix(s, terminator) {
		return nil, newDecodeErr("frame", s, `frame must end in "#\n"`)
	}
	s = strings.TrimSuffix(s, terminator)
	return strings.Split(s, ","), nil
}

// Decode parses a raw inbound device->gateway frame into its tagged
// variant. Decoding is the construction of the variant: a frame that
// can't be fully and exactly decoded into one of the known commands is
// a decode error, never a partially-populated value.
func Decode(data []byte, vendor string) (Message, error) {
	fields, err := splitFrame(data)
	if err != nil {
		return nil, err
	}
	if len(fields) < 4 {
		return nil, newDecodeErr("frame", string(data), "too few fields")
	}
	if fields[0] != DevicePreamble {
		return nil, newDecodeErr("header", fields[0], "expected device preamble "+DevicePreamble)
	}
	if fields[1] != vendor {
		return nil, newDecodeErr("vendor", fields[1], "vendor tag mismatch")
	}
	imei, err := parseIMEI(fields[2])
	if err != nil {
		return nil, err
	}
	header := Header{Vendor: fields[1], IMEI: imei}
	code := Command(fields[3])
	content := fields[4:]

	switch code {
	case CmdSignIn:
		return decodeSignIn(header, content)
	case CmdHeartbeat:
		return decodeHeartbeat(header, content)
	case CmdPositioning:
		return decodePositioning(header, content)
	case CmdAlarm:
		return decodeAlarm(header, content)
	case CmdBeep:
		return decodeBeep(header, content)
	case CmdUnlockLockChallenge:
		return decodeUnlockLockChallenge(header, content)
	case CmdUnlockConfirm:
		return decodeUnlockConfirm(header, content)
	case CmdLockConfirm:
		return decodeLockConfirm(header, content)
	case CmdSetting:
		return decodeSetting(header, content)
	default:
		return nil, newDecodeErr("code", string(code), "unknown command code")
	}
}

func requireFieldCount(code Command, content []string, n int) error {
	if len(content) != n {
		return newDecodeErr("content", string(code), fmt.Sprintf("expected %d content fields, got %d", n, len(content)))
	}
	return nil
}

func decodeSignIn(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdSignIn, c, 3); err != nil {
		return nil, err
	}
	voltage, err := parseUint16("voltage", c[0])
	if err != nil {
		return nil, err
	}
	power, err := parseUint8("power", c[1])
	if err != nil {
		return nil, err
	}
	signal, err := parseUint8("signal", c[2])
	if err != nil {
		return nil, err
	}
	return SignIn{Header: h, VoltageCenti: voltage, PowerPercent: power, Signal: signal}, nil
}

func decodeHeartbeat(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdHeartbeat, c, 5); err != nil {
		return nil, err
	}
	status, err := parseLockStatus("status", c[0])
	if err != nil {
		return nil, err
	}
	voltage, err := parseUint16("voltage", c[1])
	if err != nil {
		return nil, err
	}
	signal, err := parseUint8("signal", c[2])
	if err != nil {
		return nil, err
	}
	power, err := parseUint8("power", c[3])
	if err != nil {
		return nil, err
	}
	charging, err := parseChargingState("charging", c[4])
	if err != nil {
		return nil, err
	}
	return Heartbeat{
		Header:       h,
		Status:       status,
		VoltageCenti: voltage,
		Signal:       signal,
		Power:        power,
		Charging:     charging,
	}, nil
}

func decodePositioning(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdPositioning, c, 13); err != nil {
		return nil, err
	}
	identifier, err := parsePositioningIdentifier(c[0])
	if err != nil {
		return nil, err
	}
	valid, err := parsePositioningStatus(c[2])
	if err != nil {
		return nil, err
	}
	lat, err := parseLatitude("lat", c[3], "lat_hemi", c[4])
	if err != nil {
		return nil, err
	}
	lon, err := parseLongitude("lon", c[5], "lon_hemi", c[6])
	if err != nil {
		return nil, err
	}
	sats, err := parseUint8("sats", c[7])
	if err != nil {
		return nil, err
	}
	accuracy, err := parseFloat("accuracy", c[8])
	if err != nil {
		return nil, err
	}
	t, err := ParseDateTime(c[1], c[9])
	if err != nil {
		return nil, err
	}
	alt, err := parseUint32("altitude", c[10])
	if err != nil {
		return nil, err
	}
	if err := parseAltitudeUnit(c[11]); err != nil {
		return nil, err
	}
	mode, err := parseGPSMode(c[12])
	if err != nil {
		return nil, err
	}
	return Positioning{
		Header:     h,
		Identifier: identifier,
		Valid:      valid,
		Time:       t,
		Latitude:   lat,
		Longitude:  lon,
		Satellites: sats,
		Accuracy:   accuracy,
		Altitude:   int32(alt),
		Mode:       mode,
	}, nil
}

func decodeAlarm(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdAlarm, c, 1); err != nil {
		return nil, err
	}
	t, err := parseAlarmType(c[0])
	if err != nil {
		return nil, err
	}
	return Alarm{Header: h, Type: t}, nil
}

func decodeBeep(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdBeep, c, 1); err != nil {
		return nil, err
	}
	content, err := parseBeepContent(c[0])
	if err != nil {
		return nil, err
	}
	return Beep{Header: h, Content: content}, nil
}

func decodeUnlockLockChallenge(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdUnlockLockChallenge, c, 4); err != nil {
		return nil, err
	}
	op, err := parseOperation("operation", c[0])
	if err != nil {
		return nil, err
	}
	key, err := parseUint8("key", c[1])
	if err != nil {
		return nil, err
	}
	ts, err := parseInt64("timestamp", c[3])
	if err != nil {
		return nil, err
	}
	return UnlockLockChallenge{Header: h, Operation: op, Key: key, UserID: c[2], Timestamp: ts}, nil
}

func decodeUnlockConfirm(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdUnlockConfirm, c, 3); err != nil {
		return nil, err
	}
	status, err := parseStatus("status", c[0])
	if err != nil {
		return nil, err
	}
	ts, err := parseInt64("timestamp", c[2])
	if err != nil {
		return nil, err
	}
	return UnlockConfirm{Header: h, Status: status, UserID: c[1], Timestamp: ts}, nil
}

func decodeLockConfirm(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdLockConfirm, c, 4); err != nil {
		return nil, err
	}
	status, err := parseStatus("status", c[0])
	if err != nil {
		return nil, err
	}
	ts, err := parseInt64("timestamp", c[2])
	if err != nil {
		return nil, err
	}
	cyclingTime, err := parseUint32("cycling_time", c[3])
	if err != nil {
		return nil, err
	}
	return LockConfirm{Header: h, Status: status, UserID: c[1], Timestamp: ts, CyclingTime: cyclingTime}, nil
}

func decodeSetting(h Header, c []string) (Message, error) {
	if err := requireFieldCount(CmdSetting, c, 4); err != nil {
		return nil, err
	}
	headlight, err := parseToggleState("headlight", c[0])
	if err != nil {
		return nil, err
	}
	mode, err := parseSpeedMode("mode", c[1])
	if err != nil {
		return nil, err
	}
	throttle, err := parseToggleState("throttle", c[2])
	if err != nil {
		return nil, err
	}
	taillights, err := parseToggleState("taillights", c[3])
	if err != nil {
		return nil, err
	}
	return Setting{Header: h, Headlight: headlight, Mode: mode, Throttle: throttle, Taillights: taillights}, nil
}

// Literal escapes a value for inclusion as an exact-match fragment in a
// Validate pattern list.
func Literal(value string) string {
	return regexp.QuoteMeta(value)
}

// Fragment passes a regex fragment through unchanged, for patterns like
// `\d+` that must match a class of values rather than one literal.
func Fragment(fragment string) string {
	return fragment
}

// Validate compiles `^\*SCOR,<vendor>,<imei>,<code>,<p1>,<p2>,...#\n$`
// from the given expected-field patterns (each produced by Literal or
// Fragment) and checks response against it. The orchestrator does not
// call it: its workflow steps match already-decoded Message values.
func Validate(response []byte, vendor, imei string, code Command, patterns []string) error {
	var b strings.Builder
	b.WriteString(`^`)
	b.WriteString(regexp.QuoteMeta(DevicePreamble))
	b.WriteString(`,`)
	b.WriteString(regexp.QuoteMeta(vendor))
	b.WriteString(`,`)
	b.WriteString(regexp.QuoteMeta(imei))
	b.WriteString(`,`)
	b.WriteString(regexp.QuoteMeta(string(code)))
	for _, p := range patterns {
		b.WriteString(`,`)
		b.WriteString(p)
	}
	b.WriteString(terminator)
	b.WriteString(`$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return fmt.Errorf("protocol: invalid validation pattern: %w", err)
	}
	if !re.Match(response) {
		return &ValidationError{Pattern: b.String(), Got: string(response)}
	}
	return nil
}
