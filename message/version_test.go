package message

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleVersion() *Version {
	return &Version{
		ProtocolVersion: 70016,
		Services:        1,
		Timestamp:       1700000000,
		AddrReceiver:    NewNetAddress(netip.MustParseAddrPort("203.0.113.7:8333"), 1),
		AddrSender:      NewNetAddress(netip.MustParseAddrPort("[2001:db8::1]:18333"), 0),
		Nonce:           0xdeadbeefcafef00d,
		UserAgent:       "/satwire:0.1.0/",
		StartHeight:     820000,
		Relay:           true,
	}
}

func TestVersion_RoundTrip(t *testing.T) {
	expected := sampleVersion()
	data := expected.ToData()
	require.Equal(t, expected.SerializedSize(), uint64(len(data)))

	var result Version
	require.NoError(t, result.FromData(data))
	require.True(t, result.IsValid())
	require.True(t, expected.Equal(&result))
	require.Equal(t, "203.0.113.7:8333", result.AddrReceiver.String())
	require.Equal(t, "[2001:db8::1]:18333", result.AddrSender.String())
}

func TestVersion_RelayOmitted(t *testing.T) {
	v := sampleVersion()
	v.Relay = false
	data := v.ToData()

	// Peers may omit the trailing relay byte; it then defaults to true.
	var result Version
	require.NoError(t, result.FromData(data[:len(data)-1]))
	require.True(t, result.Relay)
}

func TestVersion_PreRelayLayout(t *testing.T) {
	v := sampleVersion()
	v.ProtocolVersion = 60002
	v.Relay = false
	data := v.ToData()
	require.Equal(t, v.SerializedSize(), uint64(len(data)))
	require.Equal(t, sampleVersion().SerializedSize()-1, uint64(len(data)))

	var result Version
	require.NoError(t, result.FromData(data))
	require.True(t, v.Equal(&result))
}

func TestVersion_TruncatedPrefixes(t *testing.T) {
	data := sampleVersion().ToData()
	// The prefix lacking only the optional relay byte is itself a valid
	// encoding, so stop one short of it.
	for n := 0; n < len(data)-1; n++ {
		var m Version
		require.Error(t, m.FromData(data[:n]), "prefix of %d bytes decoded", n)
		require.False(t, m.IsValid())
	}
}

func TestVersion_Reset(t *testing.T) {
	v := sampleVersion()
	v.Reset()
	require.False(t, v.IsValid())
	require.Equal(t, Version{}, *v)
}

func TestVersion_LongUserAgent(t *testing.T) {
	v := sampleVersion()
	v.UserAgent = string(make([]byte, MaxUserAgentLen+1))
	require.False(t, v.IsValid())

	var m Version
	require.Error(t, m.FromData(v.ToData()))
}
