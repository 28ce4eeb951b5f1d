package noise

// 握手 payload 使用 protobuf wire format 手工编码：
//   - Field 1 (identity_key): tag=0x0a, wire type=2 (length-delimited)
//   - Field 2 (identity_sig): tag=0x12, wire type=2 (length-delimited)
//
// 字段固定且极少变化，不值得为两个 bytes 字段引入代码生成。

// handshakePayload 握手身份绑定数据
type handshakePayload struct {
	// IdentityKey Ed25519 身份公钥原始字节
	IdentityKey []byte

	// IdentitySig Sign("dmesh-noise-static-key:" + curve25519_static_pubkey)
	IdentitySig []byte
}

// marshal 序列化 payload
func (p *handshakePayload) marshal() []byte {
	out := make([]byte, 0, len(p.IdentityKey)+len(p.IdentitySig)+10)

	if len(p.IdentityKey) > 0 {
		out = append(out, 0x0a)
		out = appendVarint(out, uint64(len(p.IdentityKey)))
		out = append(out, p.IdentityKey...)
	}

	if len(p.IdentitySig) > 0 {
		out = append(out, 0x12)
		out = appendVarint(out, uint64(len(p.IdentitySig)))
		out = append(out, p.IdentitySig...)
	}

	return out
}

// unmarshal 反序列化 payload
func (p *handshakePayload) unmarshal(data []byte) error {
	for len(data) > 0 {
		tag := data[0]
		data = data[1:]

		length, n := readVarint(data)
		if n <= 0 || uint64(len(data)-n) < length {
			return ErrInvalidPayload
		}
		data = data[n:]
		field := data[:length]
		data = data[length:]

		switch tag {
		case 0x0a:
			p.IdentityKey = field
		case 0x12:
			p.IdentitySig = field
		default:
			// 未知字段：跳过（向前兼容）
		}
	}
	return nil
}

// appendVarint 追加 protobuf varint
func appendVarint(buf []byte, x uint64) []byte {
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}

// readVarint 读取 protobuf varint，返回值和消费的字节数
func readVarint(buf []byte) (uint64, int) {
	var x uint64
	var shift uint
	for i, b := range buf {
		if i >= 10 {
			return 0, -1
		}
		x |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return x, i + 1
		}
		shift += 7
	}
	return 0, -1
}
