package vmsock

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
)

const dialTimeout = 5 * time.Second

// Client talks to a running VM's Control Socket Server. Used by a second
// invocation of the CLI against an already-running VM (e.g. "runvm stop
// <name>"), never by the engine process itself.
type Client struct {
	rpc *jrpc2.Client
}

// Dial connects to the control socket at sockPath.
func Dial(sockPath string) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns: 1,
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				d := net.Dialer{Timeout: dialTimeout}
				return d.DialContext(ctx, "unix", sockPath)
			},
		},
	}

	ch := jhttp.NewChannel("http://runvm", &jhttp.ChannelOptions{Client: httpClient})
	return &Client{rpc: jrpc2.NewClient(ch, nil)}, nil
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

var noResult interface{}

// Stop requests a graceful shutdown of the remote VM.
func (c *Client) Stop(ctx context.Context) error {
	return c.rpc.CallResult(ctx, "stop", nil, &noResult)
}

// RequestStop asks the remote VM to pass a stop request on to its guest OS.
func (c *Client) RequestStop(ctx context.Context) error {
	return c.rpc.CallResult(ctx, "request-stop", nil, &noResult)
}

// Suspend asks the remote VM to pause and save its state to disk.
func (c *Client) Suspend(ctx context.Context) error {
	return c.rpc.CallResult(ctx, "suspend", nil, &noResult)
}
