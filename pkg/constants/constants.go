package constants

const (
	CHANNEL_SIZE        = 256 // 单连接发送队列默认长度
	HISTORY_PAGE_SIZE   = 50  // 历史消息默认分页大小
	HISTORY_MAX_SIZE    = 200 // 历史消息单页上限
	AUTH_CODE_TTL_SEC   = 60  // 短信验证码有效期（秒）
	DEVICE_ID_MAX_LEN   = 128 // 设备标识最大长度
	MAX_DEVICES_DEFAULT = 5   // 单用户默认最多在线设备数
	CAS_MAX_RETRIES     = 3   // 乐观锁冲突最大重试次数
)

// 会话标识前缀，私聊 P 开头，群聊 G 开头
const (
	PRIVATE_MARK_PREFIX = "P"
	GROUP_MARK_PREFIX   = "G"
)

// Redis Key 前缀
const (
	AUTH_CODE_KEY_PREFIX   = "auth_code_"   // auth_code_{telephone}
	ONLINE_CONN_KEY_PREFIX = "online_conn:" // online_conn:{userId} -> set(connId)
)
