package errs

// 错误码
const (
	ServerInternalError = 500
	ArgsError           = 1001
	NotInitializedError = 1002
	DecodeError         = 1003
	TokenInvalidError   = 1004

	ConnClosedError    = 1101 // 连接已关闭
	SendQueueFullError = 1102 // 发送队列已满
)

var (
	ErrInternalServer = &CodeError{Code: ServerInternalError, Msg: "ServerInternalError"}
	ErrArgs           = &CodeError{Code: ArgsError, Msg: "ArgsError"}
	ErrNotInitialized = &CodeError{Code: NotInitializedError, Msg: "NotInitializedError"}
	ErrDecode         = &CodeError{Code: DecodeError, Msg: "DecodeError"}
	ErrTokenInvalid   = &CodeError{Code: TokenInvalidError, Msg: "TokenInvalidError"}

	ErrConnClosed    = &CodeError{Code: ConnClosedError, Msg: "ConnClosedError"}
	ErrSendQueueFull = &CodeError{Code: SendQueueFullError, Msg: "SendQueueFullError"}
)
