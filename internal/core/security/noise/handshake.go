package noise

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"filippo.io/edwards25519"
	"github.com/flynn/noise"

	"github.com/dmeshnet/go-dmesh/internal/core/identity"
	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// payloadSigPrefix 身份绑定签名的前缀
const payloadSigPrefix = "dmesh-noise-static-key:"

// ============================================================================
//                              Noise XX 握手
// ============================================================================

// performHandshake 执行 Noise XX 握手
//
// 参数：
//   - conn: 底层网络连接（调用方已设置握手截止时间）
//   - privKey: 本地 Ed25519 私钥
//   - expected: 期望的远程 PeerID（入站为空）
//   - isInitiator: true = 拨号方，false = 接受方
func performHandshake(conn net.Conn, privKey pkgif.PrivateKey, expected types.PeerID, isInitiator bool) (*secureConn, error) {
	privKeyBytes, err := privKey.Raw()
	if err != nil {
		return nil, fmt.Errorf("get private key bytes: %w", err)
	}
	pubKeyBytes, err := privKey.PublicKey().Raw()
	if err != nil {
		return nil, fmt.Errorf("get public key bytes: %w", err)
	}

	// Ed25519 -> Curve25519，用于 DH 操作
	curvePriv := ed25519ToCurve25519Private(privKeyBytes)
	curvePub, err := ed25519ToCurve25519Public(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("convert public key: %w", err)
	}

	cs := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cs,
		Pattern:       noise.HandshakeXX,
		Initiator:     isInitiator,
		StaticKeypair: noise.DHKey{Private: curvePriv, Public: curvePub},
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	localPayload, err := makePayload(privKey, pubKeyBytes, curvePub)
	if err != nil {
		return nil, fmt.Errorf("make handshake payload: %w", err)
	}

	var sendCS, recvCS *noise.CipherState
	var remotePayload []byte
	if isInitiator {
		sendCS, recvCS, remotePayload, err = initiatorHandshake(conn, hs, localPayload)
	} else {
		sendCS, recvCS, remotePayload, err = responderHandshake(conn, hs, localPayload)
	}
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	// 验证远程 payload 并提取 PeerID
	remoteStatic := hs.PeerStatic()
	if len(remoteStatic) != 32 {
		return nil, fmt.Errorf("invalid remote static key length: %d", len(remoteStatic))
	}
	remotePeer, remotePub, err := verifyPayload(remotePayload, remoteStatic)
	if err != nil {
		return nil, err
	}

	if !expected.IsEmpty() && !remotePeer.Equal(expected) {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrPeerIDMismatch, expected.ShortString(), remotePeer.ShortString())
	}

	return &secureConn{
		Conn:       conn,
		sendCS:     sendCS,
		recvCS:     recvCS,
		localPeer:  types.PeerIDFromPublicKey(pubKeyBytes),
		remotePeer: remotePeer,
		remotePub:  remotePub,
	}, nil
}

// makePayload 生成本地身份绑定 payload
func makePayload(privKey pkgif.PrivateKey, pubKeyBytes, curvePub []byte) ([]byte, error) {
	toSign := append([]byte(payloadSigPrefix), curvePub...)
	sig, err := privKey.Sign(toSign)
	if err != nil {
		return nil, fmt.Errorf("sign static key: %w", err)
	}

	p := &handshakePayload{
		IdentityKey: pubKeyBytes,
		IdentitySig: sig,
	}
	return p.marshal(), nil
}

// verifyPayload 验证远程 payload，返回远程 PeerID 和身份公钥
//
// 签名验证失败说明远端不持有其声称的身份私钥，握手终止。
func verifyPayload(payloadBytes, remoteStatic []byte) (types.PeerID, pkgif.PublicKey, error) {
	p := &handshakePayload{}
	if err := p.unmarshal(payloadBytes); err != nil {
		return types.EmptyPeerID, nil, err
	}

	remotePub, err := identity.UnmarshalPublicKey(p.IdentityKey)
	if err != nil {
		return types.EmptyPeerID, nil, fmt.Errorf("%w: bad identity key", ErrInvalidPayload)
	}

	toVerify := append([]byte(payloadSigPrefix), remoteStatic...)
	ok, err := remotePub.Verify(toVerify, p.IdentitySig)
	if err != nil {
		return types.EmptyPeerID, nil, fmt.Errorf("verify signature: %w", err)
	}
	if !ok {
		return types.EmptyPeerID, nil, ErrInvalidSignature
	}

	return types.PeerIDFromPublicKey(p.IdentityKey), remotePub, nil
}

// ============================================================================
//                              握手消息交换
// ============================================================================

// initiatorHandshake 发起方握手
//
//  1. -> e
//  2. <- e, ee, s, es, payload
//  3. -> s, se, payload
func initiatorHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 1: %w", err)
	}
	if err := writeHandshakeFrame(conn, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 1: %w", err)
	}

	msg2, err := readHandshakeFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 2: %w", err)
	}
	remotePayload, _, _, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 2: %w", err)
	}

	msg3, cs1, cs2, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 3: %w", err)
	}
	if err := writeHandshakeFrame(conn, msg3); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 3: %w", err)
	}

	// 发起者：cs1 = 发送，cs2 = 接收
	return cs1, cs2, remotePayload, nil
}

// responderHandshake 响应方握手
//
//  1. <- e
//  2. -> e, ee, s, es, payload
//  3. <- s, se, payload
func responderHandshake(conn net.Conn, hs *noise.HandshakeState, localPayload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg1, err := readHandshakeFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 1: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, nil, nil, fmt.Errorf("read message 1: %w", err)
	}

	msg2, _, _, err := hs.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("write message 2: %w", err)
	}
	if err := writeHandshakeFrame(conn, msg2); err != nil {
		return nil, nil, nil, fmt.Errorf("send message 2: %w", err)
	}

	msg3, err := readHandshakeFrame(conn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("receive message 3: %w", err)
	}
	remotePayload, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read message 3: %w", err)
	}

	// 响应者与发起者相反：cs2 = 发送，cs1 = 接收
	return cs2, cs1, remotePayload, nil
}

// writeHandshakeFrame 写入一条握手消息（2 字节大端长度前缀）
func writeHandshakeFrame(conn net.Conn, msg []byte) error {
	buf := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(buf, uint16(len(msg)))
	copy(buf[2:], msg)
	_, err := conn.Write(buf)
	return err
}

// readHandshakeFrame 读取一条握手消息
func readHandshakeFrame(conn net.Conn) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	msg := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(conn, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ============================================================================
//                              密钥转换
// ============================================================================

// ed25519ToCurve25519Private 将 Ed25519 私钥转换为 Curve25519 私钥
//
// RFC 7748 / RFC 8032 标准转换：对种子做 SHA-512，
// 取前 32 字节并 clamping。
func ed25519ToCurve25519Private(edPriv []byte) []byte {
	var seed []byte
	switch len(edPriv) {
	case ed25519.PrivateKeySize:
		seed = edPriv[:32]
	case ed25519.SeedSize:
		seed = edPriv
	default:
		return make([]byte, 32)
	}

	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	out := make([]byte, 32)
	copy(out, h[:32])
	return out
}

// ed25519ToCurve25519Public 将 Ed25519 公钥转换为 Curve25519 公钥
//
// 通过 edwards25519 点的 Montgomery u 坐标完成双有理映射。
func ed25519ToCurve25519Public(edPub []byte) ([]byte, error) {
	point, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return nil, fmt.Errorf("decode edwards point: %w", err)
	}
	return point.BytesMontgomery(), nil
}
