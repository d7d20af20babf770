package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Scholar 服务错误码: 21 (业务服务范围 20-79)
var (
	// ErrConfiguration 模板参数缺失或配置非法，不重试
	ErrConfiguration = Register(New(MakeCode(ServiceScholar, CategoryConfig, 1), http.StatusBadRequest, codes.FailedPrecondition,
		"Configuration error", "配置错误"))

	// ErrExtraction 文档无法读取
	ErrExtraction = Register(New(MakeCode(ServiceScholar, CategoryRequest, 1), http.StatusUnprocessableEntity, codes.InvalidArgument,
		"Document could not be read", "文档无法解析"))

	ErrEmptyContent = Register(New(MakeCode(ServiceScholar, CategoryRequest, 2), http.StatusBadRequest, codes.InvalidArgument,
		"Either text or a document is required", "需要提供文本或文档"))

	ErrUnknownTask = Register(New(MakeCode(ServiceScholar, CategoryResource, 1), http.StatusNotFound, codes.NotFound,
		"Unknown task kind", "未知的任务类型"))

	// ErrEmbeddingUnavailable 未配置向量化能力时，检索类任务必须显式失败
	ErrEmbeddingUnavailable = Register(New(MakeCode(ServiceScholar, CategoryNetwork, 1), http.StatusServiceUnavailable, codes.Unavailable,
		"Retrieval unavailable: no embedding provider is configured", "检索不可用：未配置向量化服务"))

	ErrAgentAborted = Register(New(MakeCode(ServiceScholar, CategoryInternal, 1), http.StatusInternalServerError, codes.Aborted,
		"Agent could not reach a final answer", "智能体未能得出最终答案"))

	ErrEngineBusy = Register(New(MakeCode(ServiceScholar, CategoryRateLimit, 2), http.StatusServiceUnavailable, codes.ResourceExhausted,
		"Too many tasks in flight, try again later", "任务过多，请稍后重试"))
)

// 模型提供方错误，按分类给出可操作的提示
var (
	ErrProviderAuth = Register(New(MakeCode(ServiceScholar, CategoryAuth, 1), http.StatusBadGateway, codes.Unauthenticated,
		"Invalid API key. Please check the language model API key configuration.", "API 密钥无效，请检查语言模型密钥配置"))

	ErrProviderQuota = Register(New(MakeCode(ServiceScholar, CategoryRateLimit, 1), http.StatusTooManyRequests, codes.ResourceExhausted,
		"API quota exhausted. Please try again later.", "API 配额已用尽，请稍后重试"))

	ErrProviderDecommissioned = Register(New(MakeCode(ServiceScholar, CategoryConfig, 2), http.StatusServiceUnavailable, codes.FailedPrecondition,
		"The LLM model being used has been decommissioned. Please contact the administrator to update the model.", "所用模型已下线，请联系管理员更新模型配置"))

	ErrProviderUnknown = Register(New(MakeCode(ServiceScholar, CategoryNetwork, 2), http.StatusBadGateway, codes.Unavailable,
		"Language model provider error", "语言模型服务错误"))
)
