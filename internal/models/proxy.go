package models

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DirectProxy 直连伪代理的地址标识
const DirectProxy = "direct"

// SupportedProxySchemes 支持的代理协议
var SupportedProxySchemes = []string{"http", "https"}

// ProxyEndpoint 代理端点
// 加载时校验,之后不再修改
type ProxyEndpoint struct {
	Scheme   string `json:"scheme"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`
	Alive    bool   `json:"alive"`
}

// DirectEndpoint 返回直连(不使用代理)伪端点
func DirectEndpoint() ProxyEndpoint {
	return ProxyEndpoint{Host: DirectProxy, Alive: true}
}

// IsDirect 是否为直连
func (p ProxyEndpoint) IsDirect() bool {
	return p.Host == DirectProxy || p.Host == ""
}

// HasCredentials 是否带认证信息
func (p ProxyEndpoint) HasCredentials() bool {
	return p.Username != ""
}

// Address host:port
func (p ProxyEndpoint) Address() string {
	return net.JoinHostPort(p.Host, p.Port)
}

// Server 浏览器--proxy-server参数使用的地址(不含认证)
func (p ProxyEndpoint) Server() string {
	if p.IsDirect() {
		return ""
	}
	return p.Scheme + "://" + p.Address()
}

// URL 完整代理URL(含认证),直连返回nil
func (p ProxyEndpoint) URL() *url.URL {
	if p.IsDirect() {
		return nil
	}
	u := &url.URL{Scheme: p.Scheme, Host: p.Address()}
	if p.HasCredentials() {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// String 日志输出用,不暴露密码
func (p ProxyEndpoint) String() string {
	if p.IsDirect() {
		return DirectProxy
	}
	if p.HasCredentials() {
		return fmt.Sprintf("%s://%s:***@%s", p.Scheme, p.Username, p.Address())
	}
	return p.Server()
}

// ParseProxyLine 解析代理行 [scheme://][user:pass@]host:port
// 缺省协议为http
func ParseProxyLine(line string) (ProxyEndpoint, error) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return ProxyEndpoint{}, &ValidationError{Field: "proxy", Value: line, Reason: "空行"}
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ProxyEndpoint{}, &ValidationError{Field: "proxy", Value: line, Reason: fmt.Sprintf("无法解析: %v", err)}
	}

	scheme := strings.ToLower(u.Scheme)
	supported := false
	for _, s := range SupportedProxySchemes {
		if s == scheme {
			supported = true
			break
		}
	}
	if !supported {
		return ProxyEndpoint{}, &ValidationError{
			Field:      "proxy",
			Value:      line,
			Reason:     fmt.Sprintf("不支持的协议: %s", u.Scheme),
			Suggestion: "使用 http:// 或 https://",
		}
	}

	if u.Hostname() == "" || u.Port() == "" {
		return ProxyEndpoint{}, &ValidationError{
			Field:      "proxy",
			Value:      line,
			Reason:     "缺少主机或端口",
			Suggestion: "格式: [scheme://][user:pass@]host:port",
		}
	}

	ep := ProxyEndpoint{
		Scheme: scheme,
		Host:   u.Hostname(),
		Port:   u.Port(),
	}
	if u.User != nil {
		ep.Username = u.User.Username()
		ep.Password, _ = u.User.Password()
	}
	return ep, nil
}

// Identity 代理+UA组合,每次轮换重新创建
type Identity struct {
	Proxy     ProxyEndpoint
	UserAgent string
}

// String 日志输出
func (i Identity) String() string {
	ua := i.UserAgent
	if len(ua) > 40 {
		ua = ua[:40] + "..."
	}
	return fmt.Sprintf("%s | %s", i.Proxy, ua)
}
