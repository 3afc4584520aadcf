package service

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/boxfi/boxd/internal/config"
	"github.com/boxfi/boxd/internal/model"
)

// OperatorManager 管理操作方信息与限流器
type OperatorManager struct {
	mu              sync.RWMutex
	operators       map[string]*model.Operator // Key: API Key
	limiters        map[string]*rate.Limiter   // Key: Operator ID
	defaultOperator *model.Operator
}

func NewOperatorManager(cfg *config.Config) *OperatorManager {
	om := &OperatorManager{
		operators: make(map[string]*model.Operator),
		limiters:  make(map[string]*rate.Limiter),
	}

	for _, opCfg := range cfg.Operators {
		op := &model.Operator{
			ID:      opCfg.ID,
			Name:    opCfg.Name,
			APIKey:  opCfg.APIKey,
			Address: common.HexToAddress(opCfg.Address),
			Rate: model.RateLimitConfig{
				QPS:   chooseFloat(cfg.Auth.DefaultQPS, opCfg.QPS),
				Burst: chooseInt(cfg.Auth.DefaultBurst, opCfg.Burst),
			},
		}
		om.Register(op)
	}

	// 单操作方模式：没有显式配置时用全局 Key
	if len(cfg.Operators) == 0 && cfg.Auth.APIKey != "" {
		op := &model.Operator{
			ID:      "default-operator",
			Name:    "Default Operator",
			APIKey:  cfg.Auth.APIKey,
			Address: common.HexToAddress(cfg.Auth.Address),
			Rate: model.RateLimitConfig{
				QPS:   cfg.Auth.DefaultQPS,
				Burst: cfg.Auth.DefaultBurst,
			},
		}
		om.Register(op)
		om.defaultOperator = op
	}

	return om
}

func (om *OperatorManager) Register(op *model.Operator) {
	om.mu.Lock()
	defer om.mu.Unlock()
	if op == nil {
		return
	}
	om.operators[op.APIKey] = op

	limit := rate.Limit(op.Rate.QPS)
	if limit == 0 {
		limit = rate.Inf
	}
	burst := op.Rate.Burst
	if burst == 0 {
		burst = 1
	}
	om.limiters[op.ID] = rate.NewLimiter(limit, burst)
}

func (om *OperatorManager) GetByAPIKey(apiKey string) (*model.Operator, bool) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	op, ok := om.operators[apiKey]
	return op, ok
}

func (om *OperatorManager) DefaultOperator() *model.Operator {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return om.defaultOperator
}

// GetLimiter 获取操作方的限流器
func (om *OperatorManager) GetLimiter(operatorID string) *rate.Limiter {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return om.limiters[operatorID]
}

func (om *OperatorManager) List() []*model.Operator {
	om.mu.RLock()
	defer om.mu.RUnlock()
	out := make([]*model.Operator, 0, len(om.operators))
	for _, op := range om.operators {
		out = append(out, op)
	}
	return out
}

func chooseFloat(base, override float64) float64 {
	if override > 0 {
		return override
	}
	return base
}

func chooseInt(base, override int) int {
	if override > 0 {
		return override
	}
	return base
}
