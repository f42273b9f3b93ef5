package model

import "gorm.io/gorm"

// ProfileVisibility 资料可见范围
type ProfileVisibility int8

const (
	ProfileVisibleToAll      ProfileVisibility = iota // 所有人可见
	ProfileVisibleToContacts                          // 仅联系人可见
	ProfileVisibleToNone                              // 仅自己可见
)

// PrivacySettings 用户隐私设置，与 UserInfo 一对一
// 布尔字段不设置数据库默认值，新建时由 DefaultPrivacySettings 显式赋值
type PrivacySettings struct {
	gorm.Model

	UserId string `gorm:"column:user_id;uniqueIndex;type:char(20);not null;comment:用户uuid"`

	// IsSearchable 是否允许被搜索到
	IsSearchable bool `gorm:"column:is_searchable;not null;comment:可被搜索"`
	// IsInvitableToGroup 是否允许被拉入群聊
	IsInvitableToGroup bool `gorm:"column:is_invitable_to_group;not null;comment:可被邀请入群"`
	// IsAddableFromGroup 是否允许通过群聊发起私聊/好友申请
	IsAddableFromGroup bool `gorm:"column:is_addable_from_group;not null;comment:可通过群添加"`
	// IsAddableByAnyone 是否允许陌生人直接发起请求
	IsAddableByAnyone bool `gorm:"column:is_addable_by_anyone;not null;comment:可被任何人添加"`

	ProfileVisibility ProfileVisibility `gorm:"column:profile_visibility;not null;comment:资料可见范围"`
}

func (PrivacySettings) TableName() string {
	return "privacy_settings"
}

// DefaultPrivacySettings 用户未设置时的默认隐私策略：全部放开
func DefaultPrivacySettings(userId string) *PrivacySettings {
	return &PrivacySettings{
		UserId:             userId,
		IsSearchable:       true,
		IsInvitableToGroup: true,
		IsAddableFromGroup: true,
		IsAddableByAnyone:  true,
		ProfileVisibility:  ProfileVisibleToAll,
	}
}
