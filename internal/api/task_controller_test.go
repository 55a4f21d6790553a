package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mautops/escrow-gin/internal/auth"
	"github.com/mautops/escrow-gin/internal/database"
	"github.com/mautops/escrow-gin/internal/ledger"
	"github.com/mautops/escrow-gin/internal/repository"
	"github.com/mautops/escrow-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPoster = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testWorker = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testOracle = "0xdddddddddddddddddddddddddddddddddddddddd"
)

type apiFixture struct {
	router *gin.Engine
	ledger *ledger.MemoryLedger
	oracle *auth.StaticOracleVerifier
}

// newAPIFixture 组装完整的 HTTP 测试栈
// 身份走开发模式的 X-Wallet-Address 头,账本为进程内实现
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.ConnectSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	taskRepo := repository.NewTaskRepository(db)
	condRepo := repository.NewConditionRepository(db)
	auditSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	memLedger := ledger.NewMemoryLedger()
	coordinator := service.NewEscrowCoordinator(taskRepo, memLedger, auditSvc, nil, nil)

	oracle := auth.NewStaticOracleVerifier(testOracle, "oracle-secret")
	conditions := service.NewConditionService(condRepo, taskRepo, coordinator, oracle, nil, auditSvc, nil)

	router := SetupRoutes(RouterOptions{
		Tasks:      NewTaskController(coordinator),
		Conditions: NewConditionController(conditions),
		Health:     NewHealthController(db, memLedger),
	})

	return &apiFixture{router: router, ledger: memLedger, oracle: oracle}
}

// do 以指定钱包身份发起请求
func (f *apiFixture) do(method, path, wallet string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if wallet != "" {
		req.Header.Set("X-Wallet-Address", wallet)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// data 解析统一响应信封中的 data
func data(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.Code, w.Body.String())
	return resp.Data
}

func (f *apiFixture) createTask(t *testing.T) string {
	t.Helper()
	w := f.do(http.MethodPost, "/api/v1/tasks", testPoster, map[string]interface{}{
		"title":         "translate landing page",
		"reward_amount": "0.02",
		"token_symbol":  "FLR",
		"poster_wallet": testPoster,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return data(t, w)["ID"].(string)
}

// TestCreateTaskAPI 测试创建任务接口
func TestCreateTaskAPI(t *testing.T) {
	f := newAPIFixture(t)

	id := f.createTask(t)
	assert.NotEmpty(t, id)

	// 缺少必填字段
	w := f.do(http.MethodPost, "/api/v1/tasks", testPoster, map[string]interface{}{
		"reward_amount": "0.02",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 钱包地址格式非法
	w = f.do(http.MethodPost, "/api/v1/tasks", "not-a-wallet", map[string]interface{}{
		"title":         "x",
		"reward_amount": "0.02",
		"token_symbol":  "FLR",
		"poster_wallet": "not-a-wallet",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestTaskLifecycleAPI 测试完整生命周期的 HTTP 流程
func TestTaskLifecycleAPI(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)
	base := "/api/v1/tasks/" + id

	// 工人接单
	w := f.do(http.MethodPost, base+"/accept", testWorker, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "accepted", data(t, w)["WorkflowStatus"])

	// 发布者注资
	w = f.do(http.MethodPost, base+"/fund", testPoster, map[string]interface{}{
		"amount":        "0.02",
		"worker_wallet": testWorker,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, data(t, w)["Funded"])

	// 工人提交
	w = f.do(http.MethodPost, base+"/submit", testWorker, map[string]interface{}{
		"submission_url": "https://example.com/work",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 发布者验收
	w = f.do(http.MethodPost, base+"/approve", testPoster, map[string]interface{}{
		"review_note": "looks good",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "approved", data(t, w)["WorkflowStatus"])

	// 发布者释放
	w = f.do(http.MethodPost, base+"/release", testPoster, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, data(t, w)["Released"])

	// 释放幂等
	w = f.do(http.MethodPost, base+"/release", testPoster, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestTaskAPIStatusMapping 测试错误到 HTTP 状态的映射
func TestTaskAPIStatusMapping(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)
	base := "/api/v1/tasks/" + id

	// 任务不存在
	w := f.do(http.MethodGet, "/api/v1/tasks/missing", testPoster, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 身份缺失
	w = f.do(http.MethodPost, base+"/accept", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 接单竞争: 第二次接单 409
	w = f.do(http.MethodPost, base+"/accept", testWorker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodPost, base+"/accept", "0xcccccccccccccccccccccccccccccccccccccccc", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 金额不一致 400
	w = f.do(http.MethodPost, base+"/fund", testPoster, map[string]interface{}{
		"amount":        "0.019",
		"worker_wallet": testWorker,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 非发布者注资 403
	w = f.do(http.MethodPost, base+"/fund", testWorker, map[string]interface{}{
		"amount":        "0.02",
		"worker_wallet": testWorker,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestTaskListAPI 测试任务列表过滤
func TestTaskListAPI(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createTask(t)
	f.createTask(t)

	w := f.do(http.MethodPost, "/api/v1/tasks/"+id+"/accept", testWorker, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/tasks?status=open", testPoster, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)

	w = f.do(http.MethodGet, fmt.Sprintf("/api/v1/tasks?worker=%s", testWorker), testPoster, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, id, resp.Data[0]["ID"])
}

// TestHealthAPI 测试健康检查
func TestHealthAPI(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}
