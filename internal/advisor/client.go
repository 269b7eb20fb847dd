package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tapesim/internal/logger"
	"tapesim/internal/strategy"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// decisionSchema 顾问响应的结构约束；先 coerce 再校验。
const decisionSchema = `{
	"type": "object",
	"required": ["action"],
	"properties": {
		"action":     {"type": "string", "enum": ["BUY", "SELL", "HOLD", "WAIT", "buy", "sell", "hold", "wait"]},
		"quantity":   {"type": "number", "minimum": 0},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"rationale":  {"type": "string"}
	}
}`

// Config 顾问客户端配置。
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client 调用外部决策服务。响应容错解析：根节点可以是决策对象，
// 也可以是 {"decision": {...}}，其余一律报错。
type Client struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
	schema   *jsonschema.Schema
}

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("advisor endpoint 不能为空")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("decision.json", strings.NewReader(decisionSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("decision.json")
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		httpc:    &http.Client{Timeout: timeout},
		schema:   schema,
	}, nil
}

type adviceRequest struct {
	Symbol     string    `json:"symbol"`
	Timestamp  int64     `json:"timestamp"`
	Price      float64   `json:"price"`
	Prices     []float64 `json:"prices"`
	Cash       float64   `json:"cash"`
	Quantity   float64   `json:"held_quantity"`
	TotalValue float64   `json:"total_value"`
	Exposure   float64   `json:"exposure"`
}

// Func 返回可注入决策引擎的回调。
func (c *Client) Func() strategy.AdvisorFunc {
	return func(m strategy.MarketContext, p strategy.PortfolioContext) (strategy.Decision, error) {
		return c.Advise(context.Background(), m, p)
	}
}

// Advise 请求一次外部决策。任何传输/解析/校验失败都返回错误，
// 由上层把错误收敛为 HOLD。
func (c *Client) Advise(ctx context.Context, m strategy.MarketContext, p strategy.PortfolioContext) (strategy.Decision, error) {
	payload := adviceRequest{
		Symbol:     m.Symbol,
		Timestamp:  m.Tick.Timestamp,
		Price:      m.Tick.Price,
		Prices:     m.Prices(),
		Cash:       p.Cash,
		Quantity:   p.HeldQuantity(),
		TotalValue: p.TotalValue,
		Exposure:   p.Exposure,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return strategy.Decision{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return strategy.Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return strategy.Decision{}, fmt.Errorf("advisor 请求失败: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return strategy.Decision{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return strategy.Decision{}, fmt.Errorf("advisor 返回 %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	return c.Parse(string(raw))
}

// Parse 解析并校验一段顾问响应。
func (c *Client) Parse(raw string) (strategy.Decision, error) {
	node, err := coerceDecisionJSON(raw)
	if err != nil {
		return strategy.Decision{}, err
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(node), &doc); err != nil {
		return strategy.Decision{}, err
	}
	if err := c.schema.Validate(doc); err != nil {
		return strategy.Decision{}, fmt.Errorf("advisor 响应不符合 schema: %w", err)
	}
	parsed := gjson.Parse(node)
	return strategy.Decision{
		Action:     strings.ToUpper(strings.TrimSpace(parsed.Get("action").String())),
		Quantity:   parsed.Get("quantity").Float(),
		Confidence: parsed.Get("confidence").Float(),
		Rationale:  strings.TrimSpace(parsed.Get("rationale").String()),
		Strategy:   strategy.AdvisorStrategyID,
	}, nil
}

// coerceDecisionJSON 把响应规整为单个决策对象。
func coerceDecisionJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("json 内容为空")
	}
	if !gjson.Valid(raw) {
		return "", fmt.Errorf("json 格式无效")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return "", fmt.Errorf("根节点必须是 JSON 对象")
	}
	if inner := parsed.Get("decision"); inner.Exists() {
		if !inner.IsObject() {
			return "", fmt.Errorf("decision 必须是对象")
		}
		return strings.TrimSpace(inner.Raw), nil
	}
	if strings.TrimSpace(parsed.Get("action").String()) == "" {
		logger.Debugf("[advisor] 响应缺少 action 字段: %s", truncate(raw, 200))
		return "", fmt.Errorf("响应未包含 action 字段")
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
