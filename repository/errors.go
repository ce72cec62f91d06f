package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateUser 邮箱已被注册
	ErrDuplicateUser = errors.New("user with this email already exists")
	// ErrDuplicateLink 第三方账号已绑定
	ErrDuplicateLink = errors.New("provider account already linked")
	// ErrInvalidField 不支持的字段名
	ErrInvalidField = errors.New("invalid field")
)

// mysqlErrDuplicateEntry 是 MySQL 唯一键冲突的错误码
const mysqlErrDuplicateEntry = 1062

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}
