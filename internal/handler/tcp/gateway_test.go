package tcp

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/chat-routing-service/internal/domain/model"
)

type captureHandler struct {
	mu          sync.Mutex
	frames      [][]byte
	disconnects int
}

func (h *captureHandler) HandleFrame(_ context.Context, conn model.Conn, raw []byte, _ time.Time) {
	h.mu.Lock()
	h.frames = append(h.frames, raw)
	h.mu.Unlock()
	// Echo back so the conn's Send path is exercised too.
	_ = conn.Send(raw)
}

func (h *captureHandler) HandleDisconnect(context.Context, model.Conn) {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
}

func (h *captureHandler) frameCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func (h *captureHandler) disconnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnects
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestGatewayFramesAndDisconnect(t *testing.T) {
	handler := &captureHandler{}
	g := NewGateway("127.0.0.1:0", handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { g.Stop(context.Background()) })

	client, err := net.Dial("tcp", g.Addr().String())
	require.NoError(t, err)

	_, err = client.Write([]byte(`{"msgid":1,"id":1,"password":"123456"}` + "\n"))
	require.NoError(t, err)
	_, err = client.Write([]byte("\n")) // blank lines are skipped
	require.NoError(t, err)
	_, err = client.Write([]byte(`{"msgid":5,"to":2}` + "\n"))
	require.NoError(t, err)

	waitFor(t, func() bool { return handler.frameCount() == 2 })

	// The echo arrives newline-terminated, proving the conn's Send framing.
	buf := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"msgid":1`)
	assert.Contains(t, string(buf[:n]), "\n")

	require.NoError(t, client.Close())
	waitFor(t, func() bool { return handler.disconnectCount() == 1 })
}
