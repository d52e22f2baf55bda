package localserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Call sends one command to the control socket at path and returns the
// reply data.
func Call(ctx context.Context, path, cmd string, args ...string) (json.RawMessage, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	line := strings.Join(append([]string{cmd}, args...), " ") + "\n"
	if _, err := conn.Write([]byte(line)); err != nil {
		return nil, err
	}

	var out struct {
		OK    bool            `json:"ok"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&out); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if !out.OK {
		return nil, errors.New(out.Error)
	}
	return out.Data, nil
}
