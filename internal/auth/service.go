package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
)

// Service 校验 Authorization 头中的静态 API 密钥。没有配置密钥时认证关闭。
type Service struct {
	keys []hashedKey
}

type hashedKey struct {
	digest  [sha256.Size]byte
	subject Subject
}

// NewService 根据配置的密钥构造认证服务。只保存密钥摘要。
func NewService(keys []Key) (*Service, error) {
	s := &Service{}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		name := strings.TrimSpace(k.Name)
		secret := strings.TrimSpace(k.Secret)
		if name == "" || secret == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "API 密钥缺少名称或内容")
		}
		if _, dup := seen[name]; dup {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "API 密钥名称重复: %s", name)
		}
		seen[name] = struct{}{}
		s.keys = append(s.keys, hashedKey{
			digest:  sha256.Sum256([]byte(secret)),
			subject: Subject{Name: name, Permissions: append([]string(nil), k.Permissions...)},
		})
	}
	return s, nil
}

// Enabled 报告是否需要认证。
func (s *Service) Enabled() bool {
	return s != nil && len(s.keys) > 0
}

// AuthenticateRequest 解析 "Bearer <key>" 并返回对应的调用方。
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (*Subject, error) {
	token, ok := strings.CutPrefix(strings.TrimSpace(authorization), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, ErrMissingToken
	}
	digest := sha256.Sum256([]byte(token))
	var match *hashedKey
	for i := range s.keys {
		// 遍历全部密钥，耗时与匹配位置无关
		if subtle.ConstantTimeCompare(digest[:], s.keys[i].digest[:]) == 1 {
			match = &s.keys[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidToken
	}
	subject := Subject{Name: match.subject.Name, Permissions: match.subject.Permissions}
	subject.normalise()
	return &subject, nil
}
