package session

import "github.com/scootergw/gateway/pkg/protocol"

// TelemetrySink receives unsolicited frames (H0/D0/W0/V0, or any frame
// decoded while no operator workflow is checked out for that IMEI) for
// downstream notification. pkg/telemetry implements this over a
// websocket broadcast hub; a nil sink is valid and simply drops frames.
type TelemetrySink interface {
	Publish(imei string, msg protocol.Message)
}
