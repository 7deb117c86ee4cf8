// Package plugin provides the public API for topicrelay rewriter plugins.
package plugin

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// MorphRPC implements the go-plugin Plugin interface for rewriter artifacts.
type MorphRPC struct {
	plugin.Plugin
	Impl Morph
}

// Server returns an RPC server for this plugin.
func (p *MorphRPC) Server(*plugin.MuxBroker) (any, error) {
	return &MorphRPCServer{Impl: p.Impl}, nil
}

// Client returns an RPC client for this plugin.
func (p *MorphRPC) Client(_ *plugin.MuxBroker, c *rpc.Client) (any, error) {
	return &MorphRPCClient{client: c}, nil
}

// MorphArgs carries a single rewrite request over RPC.
type MorphArgs struct {
	Data   []byte
	Prefix string
}

// MorphRPCServer is the RPC server implementation for rewriter artifacts.
type MorphRPCServer struct {
	Impl Morph
}

// Morph implements the RPC method for rewriting one message.
func (s *MorphRPCServer) Morph(args MorphArgs, resp *[]byte) error {
	out, err := s.Impl.Morph(args.Data, args.Prefix)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

// GetMetadata implements the RPC method for fetching plugin metadata.
func (s *MorphRPCServer) GetMetadata(_ any, resp *PluginInfo) error {
	info, err := s.Impl.GetMetadata()
	if err != nil {
		return err
	}
	*resp = info
	return nil
}

// MorphRPCClient is the RPC client implementation for rewriter artifacts.
type MorphRPCClient struct {
	client *rpc.Client
}

// Morph calls the remote Morph method.
func (c *MorphRPCClient) Morph(data []byte, prefix string) ([]byte, error) {
	var out []byte
	err := c.client.Call("Plugin.Morph", MorphArgs{Data: data, Prefix: prefix}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMetadata calls the remote GetMetadata method.
func (c *MorphRPCClient) GetMetadata() (PluginInfo, error) {
	var info PluginInfo
	err := c.client.Call("Plugin.GetMetadata", new(any), &info)
	return info, err
}
