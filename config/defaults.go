// =============================================================================
// 📦 ResearchFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Redis:        DefaultRedisConfig(),
		Mongo:        DefaultMongoConfig(),
		Providers:    DefaultProvidersConfig(),
		LLM:          DefaultLLMConfig(),
		Retrieval:    DefaultRetrievalConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultOrchestratorConfig 返回默认编排器配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		StageTimeout:      120 * time.Second,
		CheckpointGrace:   500 * time.Millisecond,
		DefaultMaxSources: 30,
		DefaultMode:       "auto",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		CacheTTL:     24 * time.Hour,
	}
}

// DefaultMongoConfig 返回默认 Mongo 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      "mongodb://localhost:27017",
		Database: "researchflow",
	}
}

// DefaultProvidersConfig 返回默认搜索提供方配置（公开、无需鉴权的端点）
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Web:          ProviderEndpoint{BaseURL: "https://serpapi.com/search"},
		News:         ProviderEndpoint{BaseURL: "https://newsapi.org/v2/everything"},
		AcademicA:    ProviderEndpoint{BaseURL: "https://export.arxiv.org/api/query"},
		AcademicB:    ProviderEndpoint{BaseURL: "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"},
		Encyclopedia: ProviderEndpoint{BaseURL: "https://en.wikipedia.org/w/api.php"},
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider: "openai",
		APIKey:          "",
		BaseURL:         "",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
		ClarifyModel:    "gpt-4o-mini",
		AnalyzeModel:    "gpt-4o",
		VerifyModel:     "gpt-4o-mini",
		ReportModel:     "gpt-4o",
	}
}

// DefaultRetrievalConfig 返回默认检索阶段参数
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		MaxQueryVariants:       8,
		MaxQueryVariantsDeep:   12,
		MaxExtractionBatch:     45,
		MaxExtractionBatchDeep: 60,
		RelevanceBatchSize:     20,
		ExtractionBatchSize:    15,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "researchflow",
		SampleRate:   0.1,
	}
}
