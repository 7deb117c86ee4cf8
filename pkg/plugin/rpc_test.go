package plugin

import (
	"bytes"
	"errors"
	"testing"

	"github.com/hashicorp/go-plugin"
)

// mockMorph prefixes the whole payload, which is enough to observe the call.
type mockMorph struct {
	info     PluginInfo
	morphErr error
	infoErr  error
}

func (m *mockMorph) Morph(data []byte, prefix string) ([]byte, error) {
	if m.morphErr != nil {
		return nil, m.morphErr
	}
	return append([]byte(prefix), data...), nil
}

func (m *mockMorph) GetMetadata() (PluginInfo, error) {
	if m.infoErr != nil {
		return PluginInfo{}, m.infoErr
	}
	return m.info, nil
}

func testInfo() PluginInfo {
	return PluginInfo{
		Name:            ArtifactName,
		Schema:          "tf2_msgs/TFMessage",
		MD5:             "94810edda583a504dfda3829e70d7eec",
		Version:         "dev",
		ProtocolVersion: ProtocolVersion,
		PluginProtocol:  string(PluginTypeGoPlugin),
	}
}

// TestMorphRPC tests the go-plugin wrapper.
func TestMorphRPC(t *testing.T) {
	mock := &mockMorph{info: testInfo()}
	rpc := &MorphRPC{Impl: mock}

	t.Run("Server", func(t *testing.T) {
		server, err := rpc.Server(nil)
		if err != nil {
			t.Fatalf("Server() error = %v", err)
		}

		rpcServer, ok := server.(*MorphRPCServer)
		if !ok {
			t.Fatal("Server() returned wrong type")
		}
		if rpcServer.Impl != mock {
			t.Fatal("Server() impl not set correctly")
		}
	})

	t.Run("Client", func(t *testing.T) {
		client, err := rpc.Client(nil, nil)
		if err != nil {
			t.Fatalf("Client() error = %v", err)
		}
		if _, ok := client.(*MorphRPCClient); !ok {
			t.Fatal("Client() returned wrong type")
		}
	})
}

// TestMorphRPCServer tests the RPC server methods directly.
func TestMorphRPCServer(t *testing.T) {
	server := &MorphRPCServer{Impl: &mockMorph{info: testInfo()}}

	t.Run("Morph", func(t *testing.T) {
		var resp []byte
		if err := server.Morph(MorphArgs{Data: []byte("odom"), Prefix: "robot1/"}, &resp); err != nil {
			t.Fatalf("Morph() error = %v", err)
		}
		if string(resp) != "robot1/odom" {
			t.Errorf("Morph() = %q, want %q", resp, "robot1/odom")
		}
	})

	t.Run("GetMetadata", func(t *testing.T) {
		var resp PluginInfo
		if err := server.GetMetadata(nil, &resp); err != nil {
			t.Fatalf("GetMetadata() error = %v", err)
		}
		if resp.Schema != "tf2_msgs/TFMessage" {
			t.Errorf("GetMetadata() schema = %q", resp.Schema)
		}
	})

	t.Run("MorphError", func(t *testing.T) {
		failing := &MorphRPCServer{Impl: &mockMorph{morphErr: errors.New("truncated")}}
		var resp []byte
		if err := failing.Morph(MorphArgs{Data: []byte{1}}, &resp); err == nil {
			t.Fatal("Morph() expected error")
		}
	})
}

// TestMorphRPCRoundTrip dispenses the plugin over an in-memory go-plugin
// connection and calls it through the client.
func TestMorphRPCRoundTrip(t *testing.T) {
	client, _ := plugin.TestPluginRPCConn(t, map[string]plugin.Plugin{
		FactoryName: &MorphRPC{Impl: &mockMorph{info: testInfo()}},
	}, nil)
	defer client.Close()

	raw, err := client.Dispense(FactoryName)
	if err != nil {
		t.Fatalf("Dispense() error = %v", err)
	}

	morph, ok := raw.(Morph)
	if !ok {
		t.Fatalf("Dispense() returned %T, want Morph", raw)
	}

	out, err := morph.Morph([]byte("base_link"), "r2/")
	if err != nil {
		t.Fatalf("Morph() error = %v", err)
	}
	if !bytes.Equal(out, []byte("r2/base_link")) {
		t.Errorf("Morph() = %q", out)
	}

	info, err := morph.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if info.ProtocolVersion != ProtocolVersion {
		t.Errorf("ProtocolVersion = %q, want %q", info.ProtocolVersion, ProtocolVersion)
	}
}
