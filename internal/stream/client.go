package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitrack/internal/metrics"
)

const writeTimeout = 30 * time.Second

var keepaliveFrame = []byte(":\n\n")

// client writes SSE frames to one connection. Each write pushes the
// connection's write deadline out by writeTimeout.
type client struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ip     string
	logger *slog.Logger
	buf    bytes.Buffer

	frames int64
	bytes  int64
}

func newClient(w http.ResponseWriter, ip string, logger *slog.Logger) *client {
	return &client{w: w, rc: http.NewResponseController(w), ip: ip, logger: logger}
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *client) sendRetry(d time.Duration) error {
	c.buf.Reset()
	c.buf.WriteString("retry: ")
	c.buf.WriteString(strconv.FormatInt(d.Milliseconds(), 10))
	c.buf.WriteString("\n\n")
	return c.write(c.buf.Bytes(), false)
}

// sendJSON sends v as one "data:" frame.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendData(data)
}

// sendData frames pre-encoded single-line JSON.
func (c *client) sendData(data []byte) error {
	c.buf.Reset()
	c.buf.WriteString("data: ")
	c.buf.Write(data)
	c.buf.WriteString("\n\n")
	return c.write(c.buf.Bytes(), true)
}

// sendKeepalive sends an empty comment frame.
func (c *client) sendKeepalive() error {
	return c.write(keepaliveFrame, false)
}

func (c *client) write(frame []byte, message bool) error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "remote_ip", c.ip, "error", err)
	}
	n, err := c.w.Write(frame)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	c.bytes += int64(n)
	metrics.AddStreamBytes(int64(n))
	if message {
		c.frames++
		metrics.IncStreamMessages()
	}
	return nil
}
