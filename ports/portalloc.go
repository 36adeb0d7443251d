// Package ports finds free loopback ports for tests.
package ports

import (
	"net"
	"sync"
)

var (
	mu   sync.Mutex
	last = 17000
)

// free reports whether port can be bound on loopback for both TCP and UDP.
func free(port int) bool {
	l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return false
	}
	defer l.Close()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return false
	}
	c.Close()
	return true
}

// GetPortNumber returns a loopback port that is free for both TCP and UDP.
// Tests run in parallel, so a port is never handed out twice per process.
func GetPortNumber() int {
	mu.Lock()
	defer mu.Unlock()
	for {
		last++
		if free(last) {
			return last
		}
	}
}
