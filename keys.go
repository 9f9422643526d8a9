package streambus

// Client identity declared on the element's meta entries.
const (
	// Language identifies this client implementation.
	Language = "go"
	// Version is the declared client version.
	Version = "0.1.0"
)

// LogStream is the shared stream every element logs to.
const LogStream = "log"

// Framing keys of the internal command and response streams. They live only
// on RPC plumbing entries; application entries never carry them.
const (
	elementKey = "element"
	cmdKey     = "cmd"
	cmdIDKey   = "cmd_id"
	dataKey    = "data"
	errCodeKey = "err_code"
	errStrKey  = "err_str"
	timeoutKey = "timeout"
)

// responseStream returns the response stream name of an element.
func responseStream(element string) string {
	return "response:" + element
}

// commandStream returns the command stream name of an element.
func commandStream(element string) string {
	return "command:" + element
}

// elementStream returns the name of a stream published by an element.
func elementStream(element, stream string) string {
	return "stream:" + element + ":" + stream
}
