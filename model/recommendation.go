package model

// SongRef 推荐请求里的一首歌
type SongRef struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Recommendation AI 推荐结果
type Recommendation struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Reason string `json:"reason"`
}

// RecommendationRequest POST /api/recommendations 的请求体
type RecommendationRequest struct {
	Songs []SongRef `json:"songs"`
	Type  string    `json:"type,omitempty"` // similar | discover
}

// RecommendationResponse 推荐接口的响应
type RecommendationResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
	Fallback        bool             `json:"fallback,omitempty"`
	Cached          bool             `json:"cached,omitempty"`
}

// OpenAIChatMessage represents a message in the OpenAI chat format.
type OpenAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIChatRequest represents a request to an OpenAI-compatible chat API.
type OpenAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []OpenAIChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	Stream      bool                `json:"stream"`
}

// OpenAIChatResponse represents a response from an OpenAI-compatible chat API.
type OpenAIChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GeminiPart Gemini generateContent 的内容片段
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent Gemini 的一条内容
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiRequest generateContent 请求体
type GeminiRequest struct {
	Contents []GeminiContent `json:"contents"`
}

// GeminiResponse generateContent 响应体
type GeminiResponse struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}
