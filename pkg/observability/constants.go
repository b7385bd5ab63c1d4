package observability

const (
	AttrServiceName     = "service.name"
	AttrQueryAttempt    = "query.attempt"
	AttrQueryRefined    = "query.refined"
	AttrSearchMode      = "search.mode"
	AttrResultCount     = "search.results"
	AttrConfidence      = "assessment.confidence"
	AttrStoreBackend    = "store.backend"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrErrorType       = "error.type"
	AttrHTTPMethod      = "http.method"
	AttrHTTPPath        = "http.path"
	AttrHTTPStatusCode  = "http.status_code"

	SpanAnswer      = "agent.answer"
	SpanRetrieve    = "agent.retrieve"
	SpanAssess      = "agent.assess"
	SpanRefine      = "agent.refine"
	SpanSynthesize  = "agent.synthesize"
	SpanLLMRequest  = "llm.request"
	SpanEmbed       = "embedder.embed"
	SpanSearch      = "store.search"
	SpanIngest      = "store.ingest"
	SpanHTTPRequest = "http.request"

	DefaultServiceName = "dowser"
)
