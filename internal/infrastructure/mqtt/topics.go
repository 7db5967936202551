package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base of every graydispatch topic.
//
// Hierarchy:
//
//	graylogic/dispatch/status                     online/offline (retained, LWT)
//	graylogic/dispatch/command/{device_name}      inbound command requests
//	graylogic/dispatch/response/{device_name}     replies to command requests
//	graylogic/dispatch/result/{device_id}         outcome of every device command
//	graylogic/dispatch/program/{program}/completed program run summaries
const TopicPrefix = "graylogic/dispatch"

// Topics provides builders for graydispatch MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	resultTopic := topics.CommandResult("3f1c...")
//	// Returns: "graylogic/dispatch/result/3f1c..."
type Topics struct{}

// Status returns the service status topic carrying the LWT.
//
// Example: graylogic/dispatch/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// CommandRequest returns the topic other systems publish commands on for a
// named device.
//
// Example: graylogic/dispatch/command/hue-light
func (Topics) CommandRequest(deviceName string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceName)
}

// CommandResult returns the topic a device command's outcome is published on.
//
// Example: graylogic/dispatch/result/0b7c2d5e-...
func (Topics) CommandResult(deviceID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, deviceID)
}

// CommandResponse returns the topic a reply to a command request is published on.
//
// Example: graylogic/dispatch/response/hue-light
func (Topics) CommandResponse(deviceName string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefix, deviceName)
}

// ProgramCompleted returns the topic a finished program run is published on.
//
// Example: graylogic/dispatch/program/wake-up/completed
func (Topics) ProgramCompleted(program string) string {
	return fmt.Sprintf("%s/program/%s/completed", TopicPrefix, program)
}

// AllCommandRequests returns a pattern matching command requests for every device.
//
// Pattern: graylogic/dispatch/command/+
func (Topics) AllCommandRequests() string {
	return TopicPrefix + "/command/+"
}

// ParseCommandRequest extracts the device name from a command request topic.
// It reports false for any other topic.
func (Topics) ParseCommandRequest(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
