package browserauth

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/int128/listener"
	"golang.org/x/xerrors"
)

// newLocalhostListener binds a listener on the first available port of the
// candidates, tried in order.
//
// Some platforms bind with address and port reuse, so a bind alone cannot
// tell that another process already listens on the port. Each port is
// therefore probed with a TCP connect first: an accepted connection means the
// port is taken, a refused connection means it is free.
func newLocalhostListener(ports []int) (*listener.Listener, error) {
	for _, port := range ports {
		addr := fmt.Sprintf("localhost:%d", port)

		conn, err := net.Dial("tcp", addr)
		if err == nil {
			// Something already listens there.
			conn.Close()
			continue
		}
		if !errors.Is(err, syscall.ECONNREFUSED) {
			return nil, xerrors.Errorf("could not check availability of %s: %w", addr, err)
		}

		l, err := listener.NewOn(addr)
		if err != nil {
			if errors.Is(err, syscall.EADDRINUSE) {
				// The port was taken between the probe and the bind.
				continue
			}
			return nil, xerrors.Errorf("could not bind %s: %w", addr, err)
		}
		return l, nil
	}
	return nil, xerrors.Errorf("no available port to bind, tried %v", ports)
}
