package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// 密钥文件为 hex 编码的 64 字节 Ed25519 私钥，权限 0600。

// LoadOrGenerate 从文件加载身份，文件不存在时生成并保存
//
// 缺失密钥材料且无法写入时返回错误，调用方应视为启动失败。
func LoadOrGenerate(path string) (*Identity, error) {
	if path == "" {
		return New()
	}

	ident, err := Load(path)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	ident, err = New()
	if err != nil {
		return nil, err
	}
	if err := Save(ident, path); err != nil {
		return nil, err
	}
	return ident, nil
}

// Load 从文件加载身份
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeyFile
	}

	priv, err := UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, err
	}
	return FromPrivateKey(priv)
}

// Save 将身份私钥写入文件
func Save(ident *Identity, path string) error {
	raw, err := ident.priv.Raw()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create key dir: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(hex.EncodeToString(raw)+"\n"), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
