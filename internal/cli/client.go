package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — задача из реестра API.
type TaskResponse struct {
	Name          string `json:"name"`
	ResultFreshS  int    `json:"result_fresh_seconds"`
	ResultExpires int    `json:"result_expires_seconds"`
	Polling       bool   `json:"polling"`
}

// TriggerResponse — ответ на запуск задачи.
type TriggerResponse struct {
	Task     string          `json:"task"`
	CacheKey string          `json:"cache_key"`
	Cached   bool            `json:"cached"`
	AgeS     int             `json:"age_seconds,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// TaskResultResponse — кэшированный результат задачи.
type TaskResultResponse struct {
	Task      string          `json:"task"`
	Timestamp string          `json:"timestamp"`
	AgeS      int             `json:"age_seconds"`
	Fresh     bool            `json:"fresh"`
	Payload   json.RawMessage `json:"payload"`
}

// BackendResponse — backend из API.
type BackendResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Provider  string `json:"provider"`
	Region    string `json:"region,omitempty"`
	Enabled   bool   `json:"enabled"`
	CreatedAt string `json:"created_at"`
}

// MachineResponse — машина из инвентаря.
type MachineResponse struct {
	ID         string   `json:"id"`
	BackendID  string   `json:"backend_id"`
	Name       string   `json:"name"`
	State      string   `json:"state"`
	PublicIPs  []string `json:"public_ips,omitempty"`
	PrivateIPs []string `json:"private_ips,omitempty"`
}

// NamedResponse — образ, размер или зона (id + name).
type NamedResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeployResponse — ответ на deployment-запрос.
type DeployResponse struct {
	MachineID string `json:"machine_id"`
	Status    string `json:"status"`
}

// --- Request types ---

// CallRequest — идентичность вызова задачи.
type CallRequest struct {
	User   string            `json:"user"`
	Args   []string          `json:"args,omitempty"`
	Kwargs map[string]string `json:"kwargs,omitempty"`
}

// TriggerRequest — запуск задачи.
type TriggerRequest struct {
	CallRequest
	Delay int `json:"delay,omitempty"`
}

// DeployRequest — deployment-запрос.
type DeployRequest struct {
	User      string `json:"user"`
	BackendID string `json:"backend_id,omitempty"`
	MachineID string `json:"machine_id,omitempty"`
	Host      string `json:"host"`
	Command   string `json:"command"`
	KeyID     string `json:"key_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Port      int    `json:"port,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Mist API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает реестр задач.
func (c *Client) ListTasks() ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", nil, &tasks)
	return tasks, err
}

// TriggerTask ставит задачу в очередь.
func (c *Client) TriggerTask(name string, req TriggerRequest) (*TriggerResponse, error) {
	var result TriggerResponse
	err := c.post("/api/v1/tasks/"+name, req, &result)
	return &result, err
}

// GetTaskResult возвращает кэшированный результат задачи.
func (c *Client) GetTaskResult(name string, call CallRequest) (*TaskResultResponse, error) {
	params := url.Values{}
	params.Set("user", call.User)
	for _, arg := range call.Args {
		params.Add("arg", arg)
	}
	for k, v := range call.Kwargs {
		params.Add("kwarg", k+"="+v)
	}

	var result TaskResultResponse
	err := c.get("/api/v1/tasks/"+name+"/result?"+params.Encode(), &result)
	return &result, err
}

// ClearTaskCache удаляет кэшированный результат и историю ошибок.
func (c *Client) ClearTaskCache(name string, call CallRequest) error {
	return c.deleteBody("/api/v1/tasks/"+name+"/cache", call)
}

// --- Backends ---

// ListBackends возвращает backend'ы пользователя.
func (c *Client) ListBackends(user string) ([]BackendResponse, error) {
	params := url.Values{}
	params.Set("user", user)

	var backends []BackendResponse
	err := c.list("/api/v1/backends", params, &backends)
	return backends, err
}

// SetBackendEnabled включает или отключает backend.
func (c *Client) SetBackendEnabled(user, id string, enabled bool) (*BackendResponse, error) {
	body := map[string]bool{"enabled": enabled}
	var backend BackendResponse
	err := c.put("/api/v1/backends/"+id+"/enabled?user="+url.QueryEscape(user), body, &backend)
	return &backend, err
}

// ListMachines возвращает машины backend.
func (c *Client) ListMachines(user, backendID string) ([]MachineResponse, error) {
	params := url.Values{}
	params.Set("user", user)

	var machines []MachineResponse
	err := c.list("/api/v1/backends/"+backendID+"/machines", params, &machines)
	return machines, err
}

// ListNamed возвращает инвентарь вида id+name (images, sizes, locations).
func (c *Client) ListNamed(user, backendID, kind string) ([]NamedResponse, error) {
	params := url.Values{}
	params.Set("user", user)

	var items []NamedResponse
	err := c.list("/api/v1/backends/"+backendID+"/"+kind, params, &items)
	return items, err
}

// --- Deploy ---

// Deploy ставит deployment-запрос в очередь.
func (c *Client) Deploy(req DeployRequest) (*DeployResponse, error) {
	var result DeployResponse
	err := c.post("/api/v1/deploy", req, &result)
	return &result, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) deleteBody(path string, body any) error {
	resp, err := c.do(http.MethodDelete, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
