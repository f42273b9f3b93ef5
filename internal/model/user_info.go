// Package model 定义数据库实体模型
// 本文件定义用户信息模型，包含用户基本资料和认证信息
package model

import (
	"database/sql"

	"golang.org/x/crypto/bcrypt" // 密码哈希库
	"gorm.io/gorm"
)

// UserStatus 账号状态
type UserStatus int8

const (
	UserStatusNew      UserStatus = iota // 已注册，从未登录
	UserStatusOnline                     // 至少一个设备在线
	UserStatusOffline                    // 所有设备离线
	UserStatusDisabled                   // 被管理员禁用
	UserStatusQuit                       // 已注销
)

// CanLogin 禁用或注销的账号不能再登录
func (s UserStatus) CanLogin() bool {
	return s != UserStatusDisabled && s != UserStatusQuit
}

// UserInfo 用户信息模型
// 对应数据库 user_info 表
type UserInfo struct {
	gorm.Model

	// Uuid 用户唯一标识，U 开头
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(20);comment:用户唯一id"`

	Nickname string `gorm:"column:nickname;type:varchar(20);not null;comment:昵称"`

	// Telephone 手机号码，登录凭据之一
	Telephone string `gorm:"column:telephone;uniqueIndex;not null;type:char(11);comment:电话"`

	Avatar string `gorm:"column:avatar;type:varchar(255);comment:头像"`

	// Password bcrypt 哈希后的密码，不存储明文
	Password string `gorm:"column:password;type:varchar(100);not null;comment:密码" json:"-"`

	LastOnlineAt  sql.NullTime `gorm:"column:last_online_at;comment:上次登录时间"`
	LastOfflineAt sql.NullTime `gorm:"column:last_offline_at;comment:最近离线时间"`

	Status UserStatus `gorm:"column:status;index;not null;comment:状态，0.新建，1.在线，2.离线，3.禁用，4.注销"`

	// RawPassword 明文密码（不入库），在 BeforeSave 中加密
	RawPassword string `gorm:"-" json:"-"`
}

func (UserInfo) TableName() string {
	return "user_info"
}

// BeforeSave GORM Hook：创建和更新前把 RawPassword 加密写入 Password
func (u *UserInfo) BeforeSave(tx *gorm.DB) error {
	if u.RawPassword == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.RawPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	u.RawPassword = ""
	return nil
}

// CheckPassword 校验密码是否正确
func (u *UserInfo) CheckPassword(plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plaintext)) == nil
}
