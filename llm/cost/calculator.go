// Package cost 将 (model, input tokens, output tokens) 映射为美元成本。
package cost

import (
	"math"
	"sync"
)

// Rate 是一个模型的单价：每 1000 token 的美元成本。
type Rate struct {
	Model       string
	InputPer1K  float64
	OutputPer1K float64
}

// Calculator 是按模型前缀匹配定价的静态表。
//
// 查找规则：先精确匹配 model；未命中时，在所有条目中找出作为 model
// 前缀的最长匹配。都未命中时返回 (0, false)。
type Calculator struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

// NewCalculator 创建定价表，并加载一组默认费率。
func NewCalculator() *Calculator {
	c := &Calculator{rates: make(map[string]Rate)}
	for _, r := range defaultRates {
		c.SetRate(r)
	}
	return c
}

// defaultRates 是已知模型的出厂定价，可被 SetRate 覆盖。
var defaultRates = []Rate{
	{Model: "gpt-4o", InputPer1K: 0.005, OutputPer1K: 0.015},
	{Model: "gpt-4o-mini", InputPer1K: 0.00015, OutputPer1K: 0.0006},
	{Model: "gpt-4-turbo", InputPer1K: 0.01, OutputPer1K: 0.03},
	{Model: "gpt-3.5-turbo", InputPer1K: 0.0005, OutputPer1K: 0.0015},
	{Model: "claude-3-5-sonnet", InputPer1K: 0.003, OutputPer1K: 0.015},
	{Model: "claude-3-opus", InputPer1K: 0.015, OutputPer1K: 0.075},
	{Model: "claude-3-haiku", InputPer1K: 0.00025, OutputPer1K: 0.00125},
	{Model: "gemini-1.5-pro", InputPer1K: 0.00125, OutputPer1K: 0.005},
	{Model: "gemini-1.5-flash", InputPer1K: 0.000075, OutputPer1K: 0.0003},
}

// SetRate 设置或覆盖一个模型（或模型前缀）的费率。
func (c *Calculator) SetRate(r Rate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[r.Model] = r
}

// lookup 返回 model 命中的费率：精确匹配优先，其次取作为前缀的最长匹配。
func (c *Calculator) lookup(model string) (Rate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r, ok := c.rates[model]; ok {
		return r, true
	}

	var best Rate
	found := false
	for key, r := range c.rates {
		if len(key) == 0 || len(key) >= len(model) {
			continue
		}
		if model[:len(key)] != key {
			continue
		}
		if !found || len(key) > len(best.Model) {
			best = r
			found = true
		}
	}
	return best, found
}

// Calculate 返回给定模型调用的美元成本，保留六位小数。
// 模型没有已知定价时返回 (0, false)。
func (c *Calculator) Calculate(model string, inputTokens, outputTokens int) (float64, bool) {
	r, ok := c.lookup(model)
	if !ok {
		return 0, false
	}
	raw := (float64(inputTokens)/1000)*r.InputPer1K + (float64(outputTokens)/1000)*r.OutputPer1K
	return math.Round(raw*1e6) / 1e6, true
}
