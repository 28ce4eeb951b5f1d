package discovery

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dmeshnet/go-dmesh/internal/protocol/wire"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// getPeersRequest 节点列表请求
type getPeersRequest struct {
	// Limit 期望返回的最大记录数，0 表示由响应方决定
	Limit uint64
}

// marshal 编码请求
func (r *getPeersRequest) marshal() []byte {
	return wire.AppendUvarint(nil, r.Limit)
}

// unmarshal 解码请求
func (r *getPeersRequest) unmarshal(data []byte) error {
	limit, rest, err := wire.ConsumeUvarint(data)
	if err != nil {
		return fmt.Errorf("decode limit: %w", err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("trailing bytes in request")
	}
	r.Limit = limit
	return nil
}

// peerEntry 响应中的一条节点通告
//
// 只携带身份和地址；LastSeen 等本地簿记由接收方自行维护，
// 不信任远端时间戳。
type peerEntry struct {
	ID    types.PeerID
	Addrs []ma.Multiaddr
}

// getPeersResponse 节点列表响应
type getPeersResponse struct {
	Peers []peerEntry
}

// marshal 编码响应
func (r *getPeersResponse) marshal() []byte {
	buf := wire.AppendUvarint(nil, uint64(len(r.Peers)))
	for _, p := range r.Peers {
		buf = wire.AppendBytes(buf, p.ID.Bytes())
		buf = wire.AppendUvarint(buf, uint64(len(p.Addrs)))
		for _, addr := range p.Addrs {
			buf = wire.AppendBytes(buf, addr.Bytes())
		}
	}
	return buf
}

// unmarshal 解码响应
func (r *getPeersResponse) unmarshal(data []byte) error {
	count, rest, err := wire.ConsumeUvarint(data)
	if err != nil {
		return fmt.Errorf("decode peer count: %w", err)
	}
	if count > maxEntriesPerMessage {
		return fmt.Errorf("peer count %d exceeds limit %d", count, maxEntriesPerMessage)
	}

	peers := make([]peerEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var idBytes []byte
		idBytes, rest, err = wire.ConsumeBytes(rest)
		if err != nil {
			return fmt.Errorf("decode peer id: %w", err)
		}
		id, err := types.PeerIDFromBytes(idBytes)
		if err != nil {
			return fmt.Errorf("decode peer id: %w", err)
		}

		var addrCount uint64
		addrCount, rest, err = wire.ConsumeUvarint(rest)
		if err != nil {
			return fmt.Errorf("decode addr count: %w", err)
		}
		if addrCount > maxAddrsPerEntry {
			return fmt.Errorf("addr count %d exceeds limit %d", addrCount, maxAddrsPerEntry)
		}

		addrs := make([]ma.Multiaddr, 0, addrCount)
		for j := uint64(0); j < addrCount; j++ {
			var raw []byte
			raw, rest, err = wire.ConsumeBytes(rest)
			if err != nil {
				return fmt.Errorf("decode addr: %w", err)
			}
			addr, err := ma.NewMultiaddrBytes(raw)
			if err != nil {
				// 无法解析的地址跳过，不让一条坏地址毒化整个响应
				continue
			}
			addrs = append(addrs, addr)
		}
		peers = append(peers, peerEntry{ID: id, Addrs: addrs})
	}

	if len(rest) != 0 {
		return fmt.Errorf("trailing bytes in response")
	}
	r.Peers = peers
	return nil
}
