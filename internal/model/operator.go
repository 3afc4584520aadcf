package model

import "github.com/ethereum/go-ethereum/common"

// Operator 代表一个通过 API Key 接入的操作方。
// 每个 Key 映射到引擎里的一个账户地址，角色检查由引擎本身完成。
type Operator struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	APIKey  string         `json:"-"`
	Address common.Address `json:"address"`
	Rate    RateLimitConfig
}

type RateLimitConfig struct {
	QPS   float64
	Burst int
}
