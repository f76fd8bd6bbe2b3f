// Package rpcclient is a client for the JSON-RPC API of a running flux server.
package rpcclient

import (
	"encoding/base64"
	"io"
	"net"
	"strconv"

	"github.com/cenkalti/flux/internal/rpctypes"
	"github.com/powerman/rpc-codec/jsonrpc2"
)

// Client of the flux server.
type Client struct {
	client *jsonrpc2.Client
}

// New returns a client that talks to the server at host:port.
func New(host string, port int) *Client {
	url := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
	return &Client{client: jsonrpc2.NewHTTPClient(url)}
}

// Close the client.
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Version() (string, error) {
	var reply string
	err := c.client.Call("Session.Version", nil, &reply)
	return reply, err
}

func (c *Client) ListTorrents() ([]rpctypes.Torrent, error) {
	var reply rpctypes.ListTorrentsResponse
	err := c.client.Call("Session.ListTorrents", nil, &reply)
	return reply.Torrents, err
}

func (c *Client) GetSessionStats() (*rpctypes.SessionStats, error) {
	var reply rpctypes.GetSessionStatsResponse
	err := c.client.Call("Session.GetSessionStats", nil, &reply)
	return &reply.Stats, err
}

func (c *Client) GetDetail(id string) (*rpctypes.Detail, error) {
	args := rpctypes.GetDetailRequest{ID: id}
	var reply rpctypes.GetDetailResponse
	err := c.client.Call("Session.GetDetail", args, &reply)
	return &reply.Detail, err
}

func (c *Client) AddTorrent(f io.Reader, opt rpctypes.AddTorrentOptions) (string, error) {
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	args := rpctypes.AddTorrentRequest{Torrent: base64.StdEncoding.EncodeToString(b), AddTorrentOptions: opt}
	var reply rpctypes.AddTorrentResponse
	err = c.client.Call("Session.AddTorrent", args, &reply)
	return reply.ID, err
}

func (c *Client) AddURI(uri string, opt rpctypes.AddTorrentOptions) (string, error) {
	args := rpctypes.AddURIRequest{URI: uri, AddTorrentOptions: opt}
	var reply rpctypes.AddURIResponse
	err := c.client.Call("Session.AddURI", args, &reply)
	return reply.ID, err
}

func (c *Client) RemoveTorrent(id string, deleteFiles bool) error {
	args := rpctypes.RemoveTorrentRequest{ID: id, DeleteFiles: deleteFiles}
	var reply rpctypes.RemoveTorrentResponse
	return c.client.Call("Session.RemoveTorrent", args, &reply)
}

func (c *Client) PauseTorrent(id string) error {
	args := rpctypes.PauseTorrentRequest{ID: id}
	var reply rpctypes.PauseTorrentResponse
	return c.client.Call("Session.PauseTorrent", args, &reply)
}

func (c *Client) ResumeTorrent(id string, force bool) error {
	args := rpctypes.ResumeTorrentRequest{ID: id, Force: force}
	var reply rpctypes.ResumeTorrentResponse
	return c.client.Call("Session.ResumeTorrent", args, &reply)
}

func (c *Client) PauseAll() error {
	var reply rpctypes.PauseAllResponse
	return c.client.Call("Session.PauseAll", nil, &reply)
}

func (c *Client) ResumeAll() error {
	var reply rpctypes.ResumeAllResponse
	return c.client.Call("Session.ResumeAll", nil, &reply)
}

// SetSpeedLimit sets limits of a torrent in bytes per second. An empty id sets session limits.
func (c *Client) SetSpeedLimit(id string, download, upload int64) error {
	args := rpctypes.SetSpeedLimitRequest{ID: id, Download: download, Upload: upload}
	var reply rpctypes.SetSpeedLimitResponse
	return c.client.Call("Session.SetSpeedLimit", args, &reply)
}

func (c *Client) MoveQueue(id, direction string) error {
	args := rpctypes.MoveQueueRequest{ID: id, Direction: direction}
	var reply rpctypes.MoveQueueResponse
	return c.client.Call("Session.MoveQueue", args, &reply)
}

func (c *Client) Recheck(id string) error {
	args := rpctypes.RecheckRequest{ID: id}
	var reply rpctypes.RecheckResponse
	return c.client.Call("Session.Recheck", args, &reply)
}

func (c *Client) MoveStorage(id, path string) error {
	args := rpctypes.MoveStorageRequest{ID: id, Path: path}
	var reply rpctypes.MoveStorageResponse
	return c.client.Call("Session.MoveStorage", args, &reply)
}

func (c *Client) Reannounce(id string) error {
	args := rpctypes.ReannounceRequest{ID: id}
	var reply rpctypes.ReannounceResponse
	return c.client.Call("Session.Reannounce", args, &reply)
}

func (c *Client) SetFilePriority(id string, index, priority int) error {
	args := rpctypes.SetFilePriorityRequest{ID: id, Index: index, Priority: priority}
	var reply rpctypes.SetFilePriorityResponse
	return c.client.Call("Session.SetFilePriority", args, &reply)
}

func (c *Client) GetBanLog() ([]rpctypes.Ban, error) {
	var reply rpctypes.GetBanLogResponse
	err := c.client.Call("Session.GetBanLog", nil, &reply)
	return reply.Bans, err
}

func (c *Client) GetNotifications() ([]rpctypes.Notification, error) {
	var reply rpctypes.GetNotificationsResponse
	err := c.client.Call("Session.GetNotifications", nil, &reply)
	return reply.Notifications, err
}
