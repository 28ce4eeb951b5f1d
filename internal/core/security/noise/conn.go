package noise

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// Noise 消息帧长度上限（2 字节长度前缀），减去 AEAD 开销
// 得到单帧最大明文长度。
const (
	maxCipherFrame = 65535
	cipherOverhead = 16
	maxPlainFrame  = maxCipherFrame - cipherOverhead
)

// secureConn Noise 安全连接
//
// 每条 Write 产生一个或多个独立加密的消息帧；
// Read 按帧解密并缓存多余的明文。
type secureConn struct {
	net.Conn

	sendCS *noise.CipherState
	recvCS *noise.CipherState

	localPeer  types.PeerID
	remotePeer types.PeerID
	remotePub  pkgif.PublicKey

	readMu  sync.Mutex
	writeMu sync.Mutex

	// 已解密但尚未被 Read 取走的明文
	readBuf []byte
}

// 确保实现接口
var _ pkgif.SecureConn = (*secureConn)(nil)

// Read 读取并解密数据
//
// 解密失败即完整性破坏：连接被关闭，错误为 ErrIntegrity。
// 部分解密的数据不会交付。
func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.readBuf) > 0 {
		n := copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(c.Conn, lenBuf[:]); err != nil {
		return 0, err
	}
	msgLen := binary.BigEndian.Uint16(lenBuf[:])
	if msgLen == 0 {
		return 0, io.EOF
	}

	ciphertext := make([]byte, msgLen)
	if _, err := io.ReadFull(c.Conn, ciphertext); err != nil {
		return 0, err
	}

	plaintext, err := c.recvCS.Decrypt(nil, nil, ciphertext)
	if err != nil {
		c.Conn.Close()
		return 0, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	n := copy(p, plaintext)
	if n < len(plaintext) {
		c.readBuf = append(c.readBuf[:0], plaintext[n:]...)
	}
	return n, nil
}

// Write 加密并写入数据
//
// 超过单帧明文上限的数据被拆分为多个消息帧。
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxPlainFrame {
			chunk = p[:maxPlainFrame]
		}

		ciphertext, err := c.sendCS.Encrypt(nil, nil, chunk)
		if err != nil {
			return total, fmt.Errorf("encrypt: %w", err)
		}

		buf := make([]byte, 2+len(ciphertext))
		binary.BigEndian.PutUint16(buf, uint16(len(ciphertext)))
		copy(buf[2:], ciphertext)
		if _, err := c.Conn.Write(buf); err != nil {
			return total, err
		}

		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// LocalPeer 返回本地节点 ID
func (c *secureConn) LocalPeer() types.PeerID {
	return c.localPeer
}

// RemotePeer 返回握手验证过的远程节点 ID
func (c *secureConn) RemotePeer() types.PeerID {
	return c.remotePeer
}

// RemotePublicKey 返回远程身份公钥
func (c *secureConn) RemotePublicKey() pkgif.PublicKey {
	return c.remotePub
}
