// Package noise 实现基于 Noise XX 的安全传输
//
// 握手流程：
//   -> e                            (发起者发送临时公钥)
//   <- e, ee, s, es, payload        (响应者发送临时公钥、静态公钥、payload)
//   -> s, se, payload               (发起者发送静态公钥、payload)
//
// payload 包含：
//   - identity_key: Ed25519 身份公钥
//   - identity_sig: Sign("dmesh-noise-static-key:" + curve25519_static_pubkey)
//
// 签名把一次性的 Curve25519 静态密钥绑定到长期 Ed25519 身份上，
// 双方据此互相验证 PeerID。握手和传输均使用 2 字节大端长度前缀
// 的 Noise 消息帧；任何解密失败都视为完整性破坏，连接被拆除，
// 部分解密的数据永远不会交付上层。
package noise
