package link

import "strconv"

// Target identifies the log store endpoint a connection dials. Two transports
// are supported: TCP and local unix sockets, selected at construction.
type Target interface {
	// Network returns the dial network, "tcp" or "unix".
	Network() string
	// Address returns the dial address for the network.
	Address() string
	// String returns a human-readable form for logs.
	String() string
}

type tcpTarget struct {
	host string
	port int
}

// TCP creates a Target for a store reachable over TCP.
func TCP(host string, port int) Target {
	return &tcpTarget{host: host, port: port}
}

func (t *tcpTarget) Network() string { return "tcp" }
func (t *tcpTarget) Address() string { return t.host + ":" + strconv.Itoa(t.port) }
func (t *tcpTarget) String() string  { return "tcp://" + t.Address() }

type unixTarget struct {
	path string
}

// Unix creates a Target for a store reachable over a local unix socket.
func Unix(path string) Target {
	return &unixTarget{path: path}
}

func (t *unixTarget) Network() string { return "unix" }
func (t *unixTarget) Address() string { return t.path }
func (t *unixTarget) String() string  { return "unix://" + t.path }
