package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 鉴权错误 100xx
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 讨论会话错误 200xx
	ErrSessionNotFound = 20001
	ErrNodeNotFound    = 20002
	ErrNotAuthor       = 20003
	ErrInvalidState    = 20004
	ErrAlreadyVoted    = 20005

	// 外部协作方失败（可重试） 300xx
	ErrVoteFailed = 30001
	ErrEditFailed = 30002
	ErrUpstream   = 30003

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
