// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 middleware 提供请求改写器链，用于在请求发送到 OpenAI 兼容
上游之前对参数做清理与转换。

# 核心接口

  - RequestRewriter：请求改写器接口，包含 Rewrite 与 Name 方法。
  - RewriterChain：改写器链，按顺序执行多个 RequestRewriter。

# 主要能力

  - 请求改写：EmptyToolsCleaner 在 Tools 为空时清理 ToolChoice，
    避免上游 API 返回 400。
*/
package middleware
