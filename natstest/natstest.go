// Package natstest runs a single shared in-process NATS server for tests
// that need real JetStream semantics. The server never listens on a socket;
// connections go through the in-process transport.
package natstest

import (
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

var (
	shared    *EmbeddedServer
	lock      sync.Mutex
	userCount uint
)

// EmbeddedServer is a handle on the shared test server. Each test that calls
// NewEmbeddedServer must Close its handle; the underlying server shuts down
// when the last handle closes.
type EmbeddedServer struct {
	ns *server.Server
}

// Conn opens a fresh in-process connection and JetStream context.
// The connection is closed automatically at test cleanup.
func (s *EmbeddedServer) Conn(t *testing.T) (*nats.Conn, jetstream.JetStream) {
	t.Helper()

	nc, err := nats.Connect(s.ns.ClientURL(), nats.InProcessServer(s.ns))
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	return nc, js
}

func (s *EmbeddedServer) Close() {
	lock.Lock()
	defer lock.Unlock()

	if shared == nil {
		return
	}
	if userCount > 1 {
		userCount--
		return
	}
	userCount = 0
	shared.ns.Shutdown()
	shared.ns.WaitForShutdown()
	shared = nil
}

// NewEmbeddedServer returns the shared server, starting it on first use.
func NewEmbeddedServer(t *testing.T) *EmbeddedServer {
	t.Helper()

	lock.Lock()
	defer lock.Unlock()

	userCount++
	if shared != nil {
		return shared
	}

	ns, err := server.NewServer(&server.Options{
		ServerName: "unit_test_server",
		DontListen: true,
		JetStream:  true,
		StoreDir:   t.TempDir(),
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(time.Second * 5) {
		ns.Shutdown()
		t.Fatal("embedded nats server is not ready for connections")
	}

	shared = &EmbeddedServer{ns: ns}
	return shared
}
