package constants

const (
	//分頁
	DefaultPagingSize      int = 10
	DefaultAdminPagingSize int = 20
	DefaultPaging          int = 1
	MaxPagingSize          int = 100
)

// for api auth
type ContextKey string

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "bearer"
	AuthorizationPayloadKey ContextKey = "authorization_payload"
)

type ENV string

const (
	Debug ENV = "debug"
	Dev   ENV = "development"
	Stag  ENV = "staging"
	Prod  ENV = "production"
)

type RequestID string

const (
	RequestIDKey    RequestID = "request_id"
	RequestIDHeader           = "X-Request-ID"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// 限流器名稱
const (
	LimiterGeneral = "general"
	LimiterAuth    = "auth"
	LimiterAPI     = "api"
	LimiterUpload  = "upload"
)
