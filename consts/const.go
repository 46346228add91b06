package consts

// 通用错误码
const (
	CodeSuccess = 0 // 成功
)

// 客户端错误 (1xxxx)
const (
	CodeParamError       = 10001 // 参数验证失败
	CodeBodyError        = 10002 // 请求体/帧格式错误
	CodeResourceNotFound = 10003 // 资源不存在
	CodeMethodNotAllowed = 10004 // 不支持的消息类型
	CodeTooManyRequests  = 10005 // 请求过于频繁
)

// 认证错误 (2xxxx)
const (
	CodeUnauthorized = 20001 // 未认证
	CodeInvalidToken = 20002 // Token 无效
	CodeTokenExpired = 20003 // Token 已过期
)

// 配对模块错误 (12xxx)
const (
	CodeInvalidRecipient       = 12001 // 目标用户不存在
	CodeCannotInteractWithSelf = 12002 // 不能对自己操作
	CodeRecipientBlocked       = 12003 // 存在拉黑关系
	CodeRequestExists          = 12004 // 已存在待处理申请
	CodeRequestNotFound        = 12005 // 申请不存在或已过期
	CodeAlreadyPaired          = 12006 // 已经配对
	CodeNotPaired              = 12007 // 不存在配对关系
	CodeAlreadyPermanent       = 12008 // 配对已是永久状态
	CodeNotTemporaryAccepter   = 12009 // 只有临时接受方可以转正
	CodeAlreadyBlocked         = 12010 // 已经拉黑
	CodeNotBlocked             = 12011 // 未拉黑该用户
)

// 数据完整性错误 (15xxx)
const (
	CodeNullData          = 15001 // 预期存在的数据行缺失（warning 级完整性信号）
	CodeIncorrectDataType = 15002 // 权限字段名或取值类型不匹配
)

// 雷达模块错误 (16xxx)
const (
	CodeRestrictedByReputation = 16001 // 信誉等级受限，禁止使用雷达
	CodeNotInZone              = 16002 // 不在任何雷达分区内
	CodeGroupFull              = 16003 // 雷达聊天组已满
	CodeAlreadyReported        = 16004 // 已举报过该用户
)

// 文件协作服务错误码 (17xxx)
// 文件托管由外部服务负责，这两个码仅为协议兼容保留。
const (
	CodeNotFileOwner    = 17001 // 不是文件所有者
	CodeInvalidPassword = 17002 // 文件口令错误
)

// 服务端错误 (3xxxx)
const (
	CodeInternalError      = 30001 // 服务器内部错误
	CodeServiceUnavailable = 30002 // 服务暂不可用
)

// 错误消息映射
var CodeMessage = map[int]string{
	CodeSuccess: "success",

	// 客户端错误
	CodeParamError:       "参数验证失败",
	CodeBodyError:        "帧格式错误",
	CodeResourceNotFound: "资源不存在",
	CodeMethodNotAllowed: "不支持的消息类型",
	CodeTooManyRequests:  "请求过于频繁",

	// 认证错误
	CodeUnauthorized: "未认证",
	CodeInvalidToken: "Token 无效",
	CodeTokenExpired: "Token 已过期",

	// 配对模块
	CodeInvalidRecipient:       "目标用户不存在",
	CodeCannotInteractWithSelf: "不能对自己操作",
	CodeRecipientBlocked:       "存在拉黑关系",
	CodeRequestExists:          "已存在待处理申请",
	CodeRequestNotFound:        "申请不存在或已过期",
	CodeAlreadyPaired:          "已经配对",
	CodeNotPaired:              "不存在配对关系",
	CodeAlreadyPermanent:       "配对已是永久状态",
	CodeNotTemporaryAccepter:   "只有临时接受方可以转正",
	CodeAlreadyBlocked:         "已经拉黑",
	CodeNotBlocked:             "未拉黑该用户",

	// 数据完整性
	CodeNullData:          "数据行缺失",
	CodeIncorrectDataType: "权限字段不合法",

	// 雷达模块
	CodeRestrictedByReputation: "信誉等级受限",
	CodeNotInZone:              "不在雷达分区内",
	CodeGroupFull:              "雷达聊天组已满",
	CodeAlreadyReported:        "已举报过该用户",

	// 文件协作服务
	CodeNotFileOwner:    "不是文件所有者",
	CodeInvalidPassword: "文件口令错误",

	// 服务端错误
	CodeInternalError:      "服务器内部错误",
	CodeServiceUnavailable: "服务暂不可用",
}

// GetMessage 根据错误码获取错误消息
func GetMessage(code int) string {
	if msg, ok := CodeMessage[code]; ok {
		return msg
	}
	return "未知错误"
}
