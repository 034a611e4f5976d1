// Package tlsutil 构建扩展访问外部 HTTP 服务时使用的客户端：TLS 1.2+、仅 AEAD 密码套件、
// 可选的私有 CA 证书，以及标明扩展身份的 User-Agent。
package tlsutil
