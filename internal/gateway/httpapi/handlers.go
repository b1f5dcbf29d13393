package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	goutils "github.com/jkaninda/go-utils"
	"github.com/jkaninda/okapi"

	"github.com/joytrunk/joytrunk/internal/config"
	"github.com/joytrunk/joytrunk/internal/employee"
	"github.com/joytrunk/joytrunk/internal/llm"
)

// HealthResponse is the JSON response for GET /api/health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Port    int    `json:"port"`
}

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Name  string  `json:"name"`
	Email *string `json:"email"`
}

// AuthResponse is the JSON response for the auth endpoints. The token is the
// owner ID itself; the local gateway has no real session layer.
type AuthResponse struct {
	Owner employee.Owner `json:"owner"`
	Token string         `json:"token"`
}

// ChatRequest is the JSON body for POST /api/employees/{id}/chat.
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatResponse is the JSON response for a chat dispatch.
type ChatResponse struct {
	Reply  string     `json:"reply"`
	Usage  *llm.Usage `json:"usage"`
	Source string     `json:"source"`
}

// TeamResponse is the JSON response for GET /api/teams/current.
type TeamResponse struct {
	Owner     employee.Owner       `json:"owner"`
	Employees []*employee.Employee `json:"employees"`
}

// UsageEntry is one per-source usage figure.
type UsageEntry struct {
	Source string `json:"source"`
	Tokens int    `json:"tokens"`
}

// UsageResponse is the JSON response for GET /api/usage. Only router traffic
// is metered; custom LLM usage is the owner's own business.
type UsageResponse struct {
	Usage []UsageEntry `json:"usage"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	port := 0
	if _, p, err := net.SplitHostPort(g.config.ListenAddr); err == nil {
		port, _ = strconv.Atoi(p)
	}
	return c.OK(HealthResponse{OK: true, Service: "joytrunk-gateway", Port: port})
}

func (g *Gateway) handleRegister(c *okapi.Context) error {
	var req RegisterRequest
	_ = c.Bind(&req)

	cfg := g.configStore.Load()
	if cfg.OwnerID != nil && *cfg.OwnerID != "" {
		return c.AbortBadRequest("本地已存在负责人，请直接使用 X-Owner-Id 头或登录")
	}

	name := req.Name
	if name == "" {
		name = "负责人"
	}
	owner := employee.Owner{ID: uuid.NewString(), Name: name, Email: req.Email}
	if _, err := g.configStore.SetOwner(owner.ID); err != nil {
		g.logger.Error("registering owner failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("注册失败")
	}
	return c.JSON(http.StatusCreated, AuthResponse{Owner: owner, Token: owner.ID})
}

func (g *Gateway) handleLogin(c *okapi.Context) error {
	cfg := g.configStore.Load()
	if cfg.OwnerID == nil || *cfg.OwnerID == "" {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "尚未注册负责人，请先 POST /api/auth/register"})
	}
	owner := employee.Owner{ID: *cfg.OwnerID, Name: "本地负责人"}
	return c.OK(AuthResponse{Owner: owner, Token: owner.ID})
}

func (g *Gateway) handleOwnersMe(c *okapi.Context) error {
	owner := g.currentOwner(g.ownerID(c))
	if owner == nil {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "负责人不存在"})
	}
	return c.OK(owner)
}

func (g *Gateway) handleEmployeeList(c *okapi.Context) error {
	return c.OK(g.employees.ListByOwner(g.ownerID(c)))
}

func (g *Gateway) handleEmployeeCreate(c *okapi.Context) error {
	ownerID := g.ownerID(c)
	var req employee.CreateRequest
	_ = c.Bind(&req)

	emp, err := g.employees.Create(ownerID, req)
	if err != nil {
		g.logger.Error("creating employee failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("创建员工失败")
	}
	return c.JSON(http.StatusCreated, emp)
}

// ownedEmployee returns the employee when it exists and belongs to ownerID.
func (g *Gateway) ownedEmployee(employeeID, ownerID string) *employee.Employee {
	emp := g.employees.Find(employeeID)
	if emp == nil || emp.OwnerID != ownerID {
		return nil
	}
	return emp
}

func (g *Gateway) handleEmployeeGet(c *okapi.Context) error {
	emp := g.ownedEmployee(c.Param("id"), g.ownerID(c))
	if emp == nil {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "员工不存在"})
	}
	return c.OK(emp)
}

func (g *Gateway) handleEmployeeUpdate(c *okapi.Context) error {
	var req employee.UpdateRequest
	_ = c.Bind(&req)

	emp, err := g.employees.Update(c.Param("id"), g.ownerID(c), req)
	if err != nil {
		g.logger.Error("updating employee failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("更新员工失败")
	}
	if emp == nil {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "员工不存在"})
	}
	return c.OK(emp)
}

func (g *Gateway) handleEmployeeConfigGet(c *okapi.Context) error {
	emp := g.ownedEmployee(c.Param("id"), g.ownerID(c))
	if emp == nil {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "员工不存在"})
	}
	override := g.employees.Configs().Load(emp.ID)
	if override == nil {
		override = map[string]any{}
	}
	return c.OK(redactProviders(override))
}

func (g *Gateway) handleEmployeeConfigPatch(c *okapi.Context) error {
	emp := g.ownedEmployee(c.Param("id"), g.ownerID(c))
	if emp == nil {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "员工不存在"})
	}

	payload := map[string]any{}
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		return c.AbortBadRequest("请求体必须是 JSON 对象")
	}
	if err := g.employees.Configs().Save(emp.ID, payload); err != nil {
		g.logger.Error("saving employee config failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("保存员工配置失败")
	}

	override := g.employees.Configs().Load(emp.ID)
	if override == nil {
		override = map[string]any{}
	}
	return c.OK(redactProviders(override))
}

func (g *Gateway) handleChat(c *okapi.Context) error {
	ownerID := g.ownerID(c)
	emp := g.ownedEmployee(c.Param("id"), ownerID)
	if emp == nil {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "员工不存在"})
	}
	if g.limiter != nil {
		if err := g.limiter.Allow(ownerID); err != nil {
			return c.AbortTooManyRequests("请求过于频繁，请稍后再试")
		}
	}

	var req ChatRequest
	_ = c.Bind(&req)

	result := g.dispatcher.Reply(c.Context(), emp, ownerID, req.Content, func() *config.Config {
		return g.configStore.Load()
	})
	return c.OK(ChatResponse{Reply: result.Reply, Usage: result.Usage, Source: result.Source})
}

func (g *Gateway) handleRouterProxy(c *okapi.Context) error {
	routerURL := g.config.RouterURL
	if routerURL == "" {
		routerURL = goutils.Env("JOYTRUNK_ROUTER_URL", "")
	}
	cfg := g.configStore.Load()
	if routerURL == "" {
		if base, ok := cfg.Providers.Joytrunk["apiBase"].(string); ok {
			routerURL = base
		}
	}
	routerURL = strings.TrimSpace(routerURL)
	if routerURL == "" {
		return c.JSON(http.StatusServiceUnavailable, ErrorBody{
			Error: "JoyTrunk Router 未配置。请设置环境变量 JOYTRUNK_ROUTER_URL 或在配置中设置 providers.joytrunk.apiBase，或使用自有 LLM。",
		})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.AbortBadRequest("读取请求体失败")
	}

	url := strings.TrimSuffix(routerURL, "/") + "/chat/completions"
	proxyReq, err := http.NewRequestWithContext(c.Context(), http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return c.JSON(http.StatusBadGateway, ErrorBody{Error: "转发 JoyTrunk Router 失败"})
	}
	proxyReq.Header.Set("Content-Type", "application/json")
	// Identify the caller to the router without auto-creating an owner.
	r := c.Request()
	ownerID := r.Header.Get("X-Owner-Id")
	if ownerID == "" {
		ownerID = r.Header.Get("Authorization")
	}
	if ownerID == "" && cfg.OwnerID != nil {
		ownerID = *cfg.OwnerID
	}
	if ownerID != "" {
		proxyReq.Header.Set("X-Owner-Id", ownerID)
	}

	resp, err := g.httpClient.Do(proxyReq)
	if err != nil {
		return c.JSON(http.StatusBadGateway, ErrorBody{Error: err.Error()})
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.JSON(http.StatusBadGateway, ErrorBody{Error: "转发 JoyTrunk Router 失败"})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(text)
		if msg == "" {
			msg = "Router 请求失败"
		}
		return c.JSON(resp.StatusCode, ErrorBody{Error: msg})
	}

	data := map[string]any{}
	if err := json.Unmarshal(text, &data); err != nil {
		return c.JSON(http.StatusBadGateway, ErrorBody{Error: "Router 返回非 JSON"})
	}
	return c.OK(data)
}

func (g *Gateway) handleTeamCurrent(c *okapi.Context) error {
	ownerID := g.ownerID(c)
	owner := g.currentOwner(ownerID)
	if owner == nil {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "负责人不存在"})
	}
	return c.OK(TeamResponse{Owner: *owner, Employees: g.employees.ListByOwner(ownerID)})
}

func (g *Gateway) handleConfigGet(c *okapi.Context) error {
	return c.OK(configView(g.configStore.Load()))
}

func (g *Gateway) handleCustomLLMPatch(c *okapi.Context) error {
	var payload config.CustomLLMPayload
	_ = c.Bind(&payload)

	cfg, err := g.configStore.SetCustomLLM(g.ownerID(c), payload)
	if err != nil {
		if err == config.ErrNotPermitted {
			return c.JSON(http.StatusForbidden, ErrorBody{Error: "无权修改配置"})
		}
		g.logger.Error("updating custom llm failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("更新配置失败")
	}

	view := configView(cfg)
	if mirror, ok := view["customLLM"].(map[string]any); ok {
		mirror["apiKey"] = "***"
	}
	return c.OK(view)
}

func (g *Gateway) handleCustomLLMDelete(c *okapi.Context) error {
	cfg, err := g.configStore.ClearCustomLLM(g.ownerID(c))
	if err != nil {
		if err == config.ErrNotPermitted {
			return c.JSON(http.StatusForbidden, ErrorBody{Error: "无权修改配置"})
		}
		g.logger.Error("clearing custom llm failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("更新配置失败")
	}
	return c.OK(configView(cfg))
}

func (g *Gateway) handleUsage(c *okapi.Context) error {
	return c.OK(UsageResponse{Usage: []UsageEntry{
		{Source: "router", Tokens: 0},
		{Source: "custom", Tokens: 0},
	}})
}

// redactProviders returns a copy of doc with providers.custom.apiKey masked.
// The input map is not modified.
func redactProviders(doc map[string]any) map[string]any {
	providers, ok := doc["providers"].(map[string]any)
	if !ok {
		return doc
	}
	custom, ok := providers["custom"].(map[string]any)
	if !ok {
		return doc
	}
	key, _ := custom["apiKey"].(string)
	if key == "" {
		return doc
	}

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	newProviders := make(map[string]any, len(providers))
	for k, v := range providers {
		newProviders[k] = v
	}
	newCustom := make(map[string]any, len(custom))
	for k, v := range custom {
		newCustom[k] = v
	}
	newCustom["apiKey"] = "***"
	newProviders["custom"] = newCustom
	out["providers"] = newProviders
	return out
}

// configView renders the global configuration for clients: credentials
// masked, plus a customLLM mirror of providers.custom kept for older UIs
// that still read the flat field.
func configView(cfg *config.Config) map[string]any {
	out := redactProviders(cfg.ToMap())

	custom := cfg.Providers.Custom
	maskedKey := ""
	if custom.APIKey != "" {
		maskedKey = "***"
	}
	base := ""
	if custom.APIBase != nil {
		base = *custom.APIBase
	}
	out["customLLM"] = map[string]any{
		"apiKey":  maskedKey,
		"apiBase": base,
		"baseUrl": base,
		"model":   custom.Model,
	}
	return out
}
