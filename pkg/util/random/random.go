package random

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

// GetRandomInt 生成指定位数的安全随机数字（用于验证码）
func GetRandomInt(length int) int {
	// 例如 length=6 时，范围是 100000-999999
	lo := int64(1)
	for i := 1; i < length; i++ {
		lo *= 10
	}
	n, err := rand.Int(rand.Reader, big.NewInt(lo*9))
	if err != nil {
		return int(lo)
	}
	return int(n.Int64() + lo)
}

// GetCode 生成指定位数的数字验证码字符串
func GetCode(length int) string {
	return strconv.Itoa(GetRandomInt(length))
}
