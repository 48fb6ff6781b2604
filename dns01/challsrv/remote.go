package challsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	acmenet "github.com/cpu/vaultcert/net"
	"go.uber.org/zap"
)

// RemoteServer drives a pebble-challtestsrv instance through its management
// HTTP API.
type RemoteServer struct {
	address string
	net     *acmenet.ACMENet
	log     *zap.Logger
	ctx     context.Context
}

// NewRemoteServer returns a RemoteServer for the management API at addr, e.g.
// "http://localhost:8055". Requests are bound to ctx.
func NewRemoteServer(ctx context.Context, addr string, net *acmenet.ACMENet, log *zap.Logger) *RemoteServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteServer{
		address: strings.TrimSuffix(addr, "/"),
		net:     net,
		log:     log,
		ctx:     ctx,
	}
}

func (srv *RemoteServer) url(path string) string {
	return fmt.Sprintf("%s/%s", srv.address, path)
}

func (srv *RemoteServer) post(path string, req any) {
	body, err := json.Marshal(req)
	if err != nil {
		srv.log.Error("encoding challenge server request", zap.String("path", path), zap.Error(err))
		return
	}
	resp, err := srv.net.PostURL(srv.ctx, srv.url(path), body)
	if err != nil {
		srv.log.Error("challenge server request failed", zap.String("path", path), zap.Error(err))
		return
	}
	if resp.Response.StatusCode >= 300 {
		srv.log.Error("challenge server request rejected",
			zap.String("path", path), zap.Int("status", resp.Response.StatusCode))
	}
}

func (srv *RemoteServer) AddDNSOneChallenge(host, content string) {
	srv.post("set-txt", struct {
		Host  string
		Value string
	}{
		Host:  host,
		Value: content,
	})
}

func (srv *RemoteServer) DeleteDNSOneChallenge(host string) {
	srv.post("clear-txt", struct {
		Host string
	}{
		Host: host,
	})
}
