package pubsub

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dmeshnet/go-dmesh/internal/protocol/wire"
	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// peerOutbound 一个对端的出站转发通道
//
// 有界队列 + 令牌桶 + 单写协程：慢对端最多占满自己的队列，
// 溢出的消息直接丢弃并计数，发布路径永远不被阻塞。
type peerOutbound struct {
	peer    types.PeerID
	queue   chan []byte
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newPeerOutbound(parent context.Context, peer types.PeerID, cfg *Config) *peerOutbound {
	ctx, cancel := context.WithCancel(parent)
	return &peerOutbound{
		peer:    peer,
		queue:   make(chan []byte, cfg.BacklogSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// enqueue 投递一条编码好的消息
//
// 队列满返回 false，消息被丢弃。
func (po *peerOutbound) enqueue(frame []byte) bool {
	select {
	case po.queue <- frame:
		return true
	default:
		return false
	}
}

// stop 终止写协程
func (po *peerOutbound) stop() {
	po.cancel()
	<-po.done
}

// run 写协程主循环
//
// 懒建一条到对端的长期 gossip 流；流写入失败时放弃该流，
// 下一条消息重新打开。引擎在对端断连时调用 stop。
func (ps *PubSub) runOutbound(po *peerOutbound) {
	defer ps.wg.Done()
	defer close(po.done)

	var codec *wire.Codec
	var st pkgif.Stream

	closeStream := func() {
		if st != nil {
			_ = st.Close()
			st = nil
			codec = nil
		}
	}
	defer closeStream()

	for {
		var frame []byte
		select {
		case <-po.ctx.Done():
			return
		case frame = <-po.queue:
		}

		if err := po.limiter.Wait(po.ctx); err != nil {
			return
		}

		if st == nil {
			var err error
			st, err = ps.network.NewStream(po.ctx, po.peer, types.ProtoGossip)
			if err != nil {
				logger.Debug("打开 gossip 流失败", "peer", po.peer.ShortString(), "error", err)
				continue
			}
			codec = wire.NewCodec(st, uint64(maxFrameSize(ps.config)))
		}

		_ = st.SetWriteDeadline(ps.clock.Now().Add(ps.config.WriteTimeout))
		if err := codec.WriteFrame(frame); err != nil {
			logger.Debug("gossip 写入失败", "peer", po.peer.ShortString(), "error", err)
			closeStream()
		}
	}
}

// maxFrameSize 线上帧上限：最大负载加字段开销
func maxFrameSize(cfg *Config) int {
	limit := cfg.DefaultMaxPayload
	for _, l := range cfg.TopicMaxPayload {
		if l > limit {
			limit = l
		}
	}
	// 主题、种子和 varint 前缀的保守余量
	return limit + 1024
}
