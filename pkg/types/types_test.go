package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"sort"
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIDDeriveDeterministic(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	id1 := PeerIDFromPublicKey(pub)
	id2 := PeerIDFromPublicKey(pub)
	assert.True(t, id1.Equal(id2))
	assert.False(t, id1.IsEmpty())
}

func TestPeerIDStringRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id := PeerIDFromPublicKey(pub)

	parsed, err := ParsePeerID(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equal(parsed))

	fromBytes, err := PeerIDFromBytes(id.Bytes())
	require.NoError(t, err)
	assert.True(t, id.Equal(fromBytes))
}

func TestParsePeerIDRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "0OIl", "abc", "!!!"} {
		_, err := ParsePeerID(s)
		assert.ErrorIs(t, err, ErrInvalidPeerID, "input %q", s)
	}

	_, err := PeerIDFromBytes(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidPeerID)
}

func TestPeerIDOrdering(t *testing.T) {
	ids := []PeerID{{3}, {1}, {2}}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	assert.Equal(t, PeerID{1}, ids[0])
	assert.Equal(t, PeerID{3}, ids[2])
	assert.False(t, ids[0].Less(ids[0]))
}

func TestShortString(t *testing.T) {
	id := PeerID{42}
	assert.Len(t, id.ShortString(), 8)
	assert.Empty(t, EmptyPeerID.String())
}

func TestParseAddrInfo(t *testing.T) {
	id := PeerIDFromPublicKey([]byte("some-public-key"))
	full := "/ip4/127.0.0.1/tcp/7100/p2p/" + id.String()

	info, err := ParseAddrInfo(full)
	require.NoError(t, err)
	assert.True(t, info.ID.Equal(id))
	require.Len(t, info.Addrs, 1)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/7100", info.Addrs[0].String())

	// 往返：FullAddrs 还原出原地址
	assert.Equal(t, []string{full}, info.FullAddrs())
}

func TestParseAddrInfoRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"/ip4/127.0.0.1/tcp/7100",     // 缺 /p2p/
		"/p2p/abc",                    // 坏 PeerID
		"not-a-multiaddr/p2p/xxx",     // 坏地址
		"/ip4/127.0.0.1/tcp/1/p2p/ab", // 短 PeerID
	}
	for _, s := range cases {
		_, err := ParseAddrInfo(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestPeerRecordClone(t *testing.T) {
	addr, err := ma.NewMultiaddr("/ip4/10.0.0.1/tcp/7100")
	require.NoError(t, err)

	rec := PeerRecord{ID: PeerID{1}, Addrs: []ma.Multiaddr{addr}, Reputation: 5}
	clone := rec.Clone()
	clone.Addrs[0] = nil
	clone.Reputation = -5

	assert.NotNil(t, rec.Addrs[0])
	assert.Equal(t, 5, rec.Reputation)
}
