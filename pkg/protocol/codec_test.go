package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVendor = "LZ"
const testIMEI = "123456789012345"

func TestEncode(t *testing.T) {
	got := Encode(testVendor, testIMEI, CmdUnlockLockChallenge, "0", "20", "1234", "1497689816")
	want := "0xFFFF*SCOS,LZ,123456789012345,R0,0,20,1234,1497689816#\n"
	assert.Equal(t, want, got)
}

func TestEncodeNoFields(t *testing.T) {
	got := Encode(testVendor, testIMEI, CmdUnlockConfirm)
	want := "0xFFFF*SCOS,LZ,123456789012345,L0#\n"
	assert.Equal(t, want, got)
}

func TestEncodeIdempotent(t *testing.T) {
	a := Encode(testVendor, testIMEI, CmdSetting, "0", "1", "0", "0")
	b := Encode(testVendor, testIMEI, CmdSetting, "0", "1", "0", "0")
	assert.Equal(t, a, b)
}

func TestDecodeSignIn(t *testing.T) {
	frame := []byte("*SCOR,LZ,123456789012345,Q0,1200,80,25#\n")
	msg, err := Decode(frame, testVendor)
	require.NoError(t, err)
	signIn, ok := msg.(SignIn)
	require.True(t, ok)
	assert.Equal(t, testIMEI, signIn.IMEI)
	assert.Equal(t, uint16(1200), signIn.VoltageCenti)
	assert.Equal(t, uint8(80), signIn.PowerPercent)
	assert.Equal(t, uint8(25), signIn.Signal)
}

func TestDecodeHeartbeat(t *testing.T) {
	frame := []byte("*SCOR,LZ,123456789012345,H0,0,3780,22,78,0#\n")
	msg, err := Decode(frame, testVendor)
	require.NoError(t, err)
	hb, ok := msg.(Heartbeat)
	require.True(t, ok)
	assert.Equal(t, LockStatusUnlocked, hb.Status)
	assert.Equal(t, ChargingUncharged, hb.Charging)
}

func TestDecodeRejectsMissingTerminator(t *testing.T) {
	_, err := Decode([]byte("*SCOR,LZ,123456789012345,Q0,1200,80,25"), testVendor)
	require.Error(t, err)
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestDecodeRejectsWrongPreamble(t *testing.T) {
	_, err := Decode([]byte("*XXXX,LZ,123456789012345,Q0,1200,80,25#\n"), testVendor)
	require.Error(t, err)
}

func TestDecodeRejectsWrongVendor(t *testing.T) {
	_, err := Decode([]byte("*SCOR,ZZ,123456789012345,Q0,1200,80,25#\n"), testVendor)
	require.Error(t, err)
}

func TestDecodeRejectsBadIMEI(t *testing.T) {
	_, err := Decode([]byte("*SCOR,LZ,12345,Q0,1200,80,25#\n"), testVendor)
	require.Error(t, err)
}

func TestDecodeAlarmGapAt5(t *testing.T) {
	_, err := Decode([]byte("*SCOR,LZ,123456789012345,W0,5#\n"), testVendor)
	require.Error(t, err)
}

func TestDecodeUnlockChallenge(t *testing.T) {
	frame := []byte("*SCOR,LZ,123456789012345,R0,0,55,1234,1497689816#\n")
	msg, err := Decode(frame, testVendor)
	require.NoError(t, err)
	r0, ok := msg.(UnlockLockChallenge)
	require.True(t, ok)
	assert.Equal(t, OperationUnlock, r0.Operation)
	assert.Equal(t, uint8(55), r0.Key)
	assert.Equal(t, "1234", r0.UserID)
	assert.Equal(t, int64(1497689816), r0.Timestamp)
}

func TestRoundTripSetting(t *testing.T) {
	frame := Encode(testVendor, testIMEI, CmdSetting, "0", "2", "0", "0")
	// substitute the device preamble to simulate an echoed response
	deviceFrame := "*SCOR" + frame[len(GatewayPreamble):]
	msg, err := Decode([]byte(deviceFrame), testVendor)
	require.NoError(t, err)
	s, ok := msg.(Setting)
	require.True(t, ok)
	assert.Equal(t, ToggleDontSet, s.Headlight)
	assert.Equal(t, SpeedMedium, s.Mode)
}

func TestValidateSoundness(t *testing.T) {
	out := Encode(testVendor, testIMEI, CmdUnlockLockChallenge, "0", "20", "1234", "1497689816")
	deviceFrame := "*SCOR" + out[len(GatewayPreamble):]
	err := Validate([]byte(deviceFrame), testVendor, testIMEI, CmdUnlockLockChallenge,
		[]string{Literal("0"), Literal("20"), Literal("1234"), Literal("1497689816")})
	assert.NoError(t, err)
}

func TestValidateTightness(t *testing.T) {
	resp := []byte("*SCOR,LZ,123456789012345,R0,0,55,1234,1497689816#\n")
	err := Validate(resp, testVendor, testIMEI, CmdUnlockLockChallenge,
		[]string{Literal("0"), Fragment(`\d+`), Literal("1234"), Literal("1497689816")})
	require.NoError(t, err)

	corrupted := []byte("*SCOR,LZ,123456789012345,R0,1,55,1234,1497689816#\n")
	err = Validate(corrupted, testVendor, testIMEI, CmdUnlockLockChallenge,
		[]string{Literal("0"), Fragment(`\d+`), Literal("1234"), Literal("1497689816")})
	assert.Error(t, err)
}

func TestValidateKeyWildcardRequiresDigit(t *testing.T) {
	resp := []byte("*SCOR,LZ,123456789012345,R0,0,,1234,1497689816#\n")
	err := Validate(resp, testVendor, testIMEI, CmdUnlockLockChallenge,
		[]string{Literal("0"), Fragment(`\d+`), Literal("1234"), Literal("1497689816")})
	assert.Error(t, err)
}
