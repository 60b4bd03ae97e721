package mqtt

import "strings"

// Topics builds the fixed topic layout for a fleet namespace:
//
//	<prefix>/<device>/cmd      commands to one device
//	<prefix>/<device>/status   status reports from one device
//	<prefix>/broadcast/cmd     commands to every device
type Topics struct {
	Prefix string
}

// BroadcastDevice is the pseudo-device addressed by broadcast commands.
const BroadcastDevice = "broadcast"

// ValidDeviceID reports whether id is usable as a single topic level:
// non-empty and free of the MQTT separator and wildcard characters.
func ValidDeviceID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+#")
}

func (t Topics) Command(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/cmd"
}

func (t Topics) Broadcast() string {
	return t.Command(BroadcastDevice)
}

func (t Topics) Status(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/status"
}

// StatusWildcard subscribes to every device's status topic.
func (t Topics) StatusWildcard() string {
	return t.Prefix + "/+/status"
}

// DeviceFromStatusTopic extracts the device ID from a status topic, or
// "" if the topic does not match the layout.
func (t Topics) DeviceFromStatusTopic(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return ""
	}
	device, ok := strings.CutSuffix(rest, "/status")
	if !ok || device == "" || strings.Contains(device, "/") {
		return ""
	}
	return device
}
