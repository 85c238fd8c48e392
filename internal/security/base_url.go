package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// allowedSchemes はHikCentralのベースURLとして許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はベースURLとして拒否するネットワーク範囲。
// HikCentralは通常プライベートネットワーク上にあるため、RFC 1918 とループバックは許可する。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6リンクローカル
		"fe80::/10",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// NormalizeBaseURL はHikCentralのベースURLを検証し、scheme://host[:port] の形に正規化する。
// パス・クエリ・フラグメント・ユーザー情報は取り除く。
// DNS解決を伴わない静的な検証のみを行う。
func NormalizeBaseURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return "", fmt.Errorf("disallowed scheme: %q (allowed: %v)", parsed.Scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
		return "", fmt.Errorf("blocked IP address: %s", ip.String())
	}

	return scheme + "://" + strings.ToLower(parsed.Host), nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
